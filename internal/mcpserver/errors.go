package mcpserver

import (
	"errors"
	"log/slog"

	"github.com/Aman-CERP/ragcrawl/internal/errs"
)

// statusFor builds the Status every failed tool call embeds in its 200-OK
// result, per spec.md §6/§7: success:false, a human message, an error_kind,
// and — for Internal-kind failures — a correlation id the log line below
// can be grepped by.
func (s *Server) statusFor(err error) Status {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.Internal, err)
	}

	st := Status{Success: false, Error: e.Message, ErrorKind: string(e.Kind)}
	if e.Kind == errs.Internal {
		st.CorrelationID = generateCorrelationID()
		s.logger.Error("internal tool error", slog.String("correlation_id", st.CorrelationID), slog.String("error", e.Error()))
	}
	return st
}
