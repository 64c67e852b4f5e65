package broadcast

import (
	"strings"

	"noema/internal/kb"
	"noema/internal/parser"
	"noema/internal/router"
)

// handleCommand implements spec.md §6's control-command dialect:
// `retract <assertion-id>` removes a stored assertion directly; any other
// line is parsed as a sequence of KIF terms and routed, tagged
// router.SourceWebSocket.
func handleCommand(r *router.Router, kbase *kb.KB, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if fields := strings.Fields(line); len(fields) == 2 && fields[0] == "retract" {
		kbase.RetractAssertion(kb.ID(fields[1]))
		return
	}

	forms, err := parser.ParseAll(line)
	if err != nil {
		return
	}
	for _, form := range forms {
		_ = r.Route(form, router.SourceWebSocket, "")
	}
}
