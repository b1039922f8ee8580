package inet

import (
	"bufio"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

type ResolvectlEntry struct {
	LinkName         string
	LinkIndex        int
	Scope            string
	Protocols        string
	CurrentDnsServer string
	DnsServers       string
	DnsDomains       string
}

var (
	linkIndexExp = regexp.MustCompile(`^Link ([0-9]+) `)
	linkNameExp  = regexp.MustCompile(`\(([^)]+)\)`)
)

/*
* Parse the initial line and pass to balance of parsing.
* Link 2 (ens160)
 */
func NewResolvectlEntry(line string, scanner *bufio.Scanner) *ResolvectlEntry {

	re := ResolvectlEntry{}
	line = strings.TrimSpace(line)

	matches := linkIndexExp.FindStringSubmatch(line)
	if matches == nil {
		slog.Warn("parse failure", "no ifindex in", line)
		return nil
	}
	re.LinkIndex, _ = strconv.Atoi(matches[1])

	matches = linkNameExp.FindStringSubmatch(line)
	if matches == nil {
		slog.Warn("parse failure", "ifname not found", line)
		return nil
	}
	re.LinkName = matches[1]

	re.Parse(scanner)
	return &re
}

// Split on the first colon only; IPv6 servers carry colons of their own.
func statusValue(line string) string {

	_, v, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.TrimSpace(v)
}

/*
* Consume the link's block up to the blank line that ends it.  Keys this
* daemon does not care about ("Default Route", "DNSSEC setting", ...) are
* skipped.  Long server and domain lists wrap onto continuation lines that
* carry no "key: " prefix.
 */
func (re *ResolvectlEntry) Parse(scanner *bufio.Scanner) {

	var last *string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return
		}

		if !strings.Contains(line, ": ") && !strings.HasSuffix(line, ":") {
			if last != nil {
				*last = strings.TrimSpace(*last + " " + line)
			}
			continue
		}

		key, _, _ := strings.Cut(line, ":")
		last = nil
		switch strings.TrimSpace(key) {
		case "Current Scopes":
			re.Scope = statusValue(line)
		case "Protocols":
			re.Protocols = statusValue(line)
		case "Current DNS Server":
			re.CurrentDnsServer = statusValue(line)
		case "DNS Servers":
			re.DnsServers = statusValue(line)
			last = &re.DnsServers
		case "DNS Domain":
			re.DnsDomains = statusValue(line)
			last = &re.DnsDomains
		}
	}
}
