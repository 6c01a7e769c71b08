package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// GraylogFacility is reported as the GELF facility of every message.
const GraylogFacility = "torcs-driver"

// NewGraylogHandler returns a JSON slog handler that ships records to a GELF
// UDP endpoint.
func NewGraylogHandler(address string, lvl slog.Level) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create graylog writer: %w", err)
	}
	w.Facility = GraylogFacility
	return slog.NewJSONHandler(w, handlerOptions(lvl)), w, nil
}
