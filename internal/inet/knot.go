package inet

/*
* knot-resolver backend, driven through its Lua control socket.  Each
* command is one line; the resolver answers with output lines followed by
* an empty line.
*
* The whole rule set is replaced by a single Lua chunk, which kresd runs in
* one go between queries, so the resolver never serves from half a rule set.
 */
import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

var ruleIdExp = regexp.MustCompile(`\[id\] => (\d+)`)

type Knot struct {
	mutex   sync.Mutex
	socket  string
	timeout time.Duration
}

func NewKnot(socket string, timeout time.Duration) *Knot {
	return &Knot{socket: socket, timeout: timeout}
}

func (k *Knot) Name() string {
	return "knot"
}

type knotSession struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (k *Knot) dial(ctx context.Context) (*knotSession, error) {

	d := net.Dialer{Timeout: k.timeout}
	conn, err := d.DialContext(ctx, "unix", k.socket)
	if err != nil {
		return nil, fmt.Errorf("knot control %s: %w", k.socket, err)
	}

	deadline := time.Now().Add(k.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	return &knotSession{conn: conn, reader: bufio.NewReader(conn)}, nil
}

/*
* Send one command line and collect the reply up to the terminating empty
* line (or a bare prompt).
 */
func (s *knotSession) command(cmd string) (string, error) {

	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", err
	}

	var out strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" || trimmed == ">" || trimmed == "> " {
			if err == nil || line != "" {
				return out.String(), nil
			}
		}
		out.WriteString(line)
		if err != nil {
			return out.String(), err
		}
	}
}

func (k *Knot) ruleIds(s *knotSession) ([]int, error) {

	reply, err := s.command("policy.rules")
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}

	ids := []int{}
	for _, m := range ruleIdExp.FindAllStringSubmatch(reply, -1) {
		id, err := strconv.Atoi(m[1])
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

/*
* Build the replacement chunk: delete the old rules newest first, then add
* one STUB rule per routed suffix and a FORWARD rule for everything else.
 */
func (k *Knot) Chunk(cfg *model.EffectiveConfig, oldIds []int) string {

	stmts := []string{}

	ids := slices.Clone(oldIds)
	slices.Sort(ids)
	slices.Reverse(ids)
	for _, id := range ids {
		stmts = append(stmts, fmt.Sprintf("policy.del(%d)", id))
	}

	stub := func(suffix string, r model.DomainRoute) {
		if len(r.Nameservers) == 0 {
			return
		}
		stmts = append(stmts, fmt.Sprintf(
			"%spolicy.add(policy.suffix(policy.STUB(%s), {todname(%s)}))",
			ruleComment(r), luaTable(addrStrings(r.Nameservers)), luaQuote(suffix)))
	}
	for _, d := range cfg.RouteDomains() {
		stub(d, cfg.DomainRoutes[d])
	}
	for _, z := range cfg.ReverseZones() {
		stub(z, cfg.ReverseRoutes[z])
	}

	if len(cfg.GlobalNameservers) > 0 {
		stmts = append(stmts, fmt.Sprintf("policy.add(policy.all(policy.FORWARD(%s)))",
			luaTable(addrStrings(cfg.GlobalNameservers))))
	}
	return strings.Join(stmts, "; ")
}

var commentEscaper = strings.NewReplacer("]", "", "\n", " ", "\r", " ")

// Lua block comment naming the connection behind a rule.  The chunk is one
// line, and "]]" would end the comment early.
func ruleComment(r model.DomainRoute) string {

	if r.Source == "" {
		return ""
	}
	label := r.Source
	if r.Medium != "" {
		label = r.Medium + " " + label
	}
	return "--[[ " + commentEscaper.Replace(label) + " ]] "
}

func (k *Knot) Commit(ctx context.Context, cfg *model.EffectiveConfig) error {

	k.mutex.Lock()
	defer k.mutex.Unlock()

	s, err := k.dial(ctx)
	if err != nil {
		return err
	}
	defer s.conn.Close()

	ids, err := k.ruleIds(s)
	if err != nil {
		return err
	}

	chunk := k.Chunk(cfg, ids)
	if chunk == "" {
		return nil
	}

	reply, err := s.command(chunk)
	if err != nil {
		return fmt.Errorf("apply rules: %w", err)
	}
	if strings.Contains(reply, "error") {
		return fmt.Errorf("apply rules: %s", strings.TrimSpace(reply))
	}

	slog.Info("knot rules replaced", "removed", len(ids),
		"routes", len(cfg.DomainRoutes)+len(cfg.ReverseRoutes))
	return nil
}

/*
* kresd keeps its rules in memory only; a restart of the resolver is the
* backup.  Nothing to save.
 */
func (k *Knot) BackupConfig() error {
	return nil
}

/*
* Drop every rule this daemon could have added.
 */
func (k *Knot) RestoreConfig() error {

	k.mutex.Lock()
	defer k.mutex.Unlock()

	s, err := k.dial(context.Background())
	if err != nil {
		return err
	}
	defer s.conn.Close()

	ids, err := k.ruleIds(s)
	if err != nil {
		return err
	}
	chunk := k.Chunk(model.NewEffectiveConfig(), ids)
	if chunk == "" {
		return nil
	}
	_, err = s.command(chunk)
	return err
}
