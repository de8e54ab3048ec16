package sink

import (
	"encoding/json"
	"fmt"

	"reorgcdc/core"
)

// ConsoleSink writes each CDC message as JSON to stdout (one line per
// message, or indented over several lines when prettyPrint is set),
// mirroring the reference ConsoleSink.
type ConsoleSink struct {
	prettyPrint bool
}

func NewConsoleSink(prettyPrint bool) *ConsoleSink {
	return &ConsoleSink{prettyPrint: prettyPrint}
}

func (s *ConsoleSink) Send(messages []core.CdcMessage) error {
	for _, m := range messages {
		var (
			b   []byte
			err error
		)
		if s.prettyPrint {
			b, err = json.MarshalIndent(m, "", "  ")
		} else {
			b, err = json.Marshal(m)
		}
		if err != nil {
			return fmt.Errorf("%w: serialize cdc message: %v", core.ErrSerialization, err)
		}
		fmt.Println(string(b))
	}
	return nil
}

func (s *ConsoleSink) Flush() error { return nil }
func (s *ConsoleSink) Close() error { return nil }
