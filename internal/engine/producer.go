package engine

//
// Tracks the connections last reported by each producer.
//
import (
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

type Producer struct {
	ID          string
	Seq         uint64 // submission order across all producers
	Connections []model.Connection
	UpdateTime  int64
}

func NewProducer(id string, seq uint64, conns []model.Connection) *Producer {
	p := Producer{
		ID:          id,
		Seq:         seq,
		Connections: conns,
		UpdateTime:  time.Now().Unix(),
	}

	return &p
}
