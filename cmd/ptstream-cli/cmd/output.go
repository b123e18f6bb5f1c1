package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"ptstream/token"
)

type tokenLine struct {
	Topic string `json:"topic"`
	Seq   uint64 `json:"seq,omitempty"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type tokenPrinter struct {
	w    io.Writer
	json bool
	enc  *json.Encoder
}

func newTokenPrinter(w io.Writer, format string) *tokenPrinter {
	return &tokenPrinter{
		w:    w,
		json: format == "json",
		enc:  json.NewEncoder(w),
	}
}

func (p *tokenPrinter) Print(topic string, seq uint64, t token.Token) error {
	if p.json {
		return p.enc.Encode(&tokenLine{
			Topic: topic,
			Seq:   seq,
			Type:  t.TypeName(),
			Value: t.String(),
		})
	}
	var err error
	if seq > 0 {
		_, err = fmt.Fprintf(p.w, "%s\t%d\t%s\t%s\n", topic, seq, t.TypeName(), t.String())
	} else {
		_, err = fmt.Fprintf(p.w, "%s\t%s\t%s\n", topic, t.TypeName(), t.String())
	}
	return err
}
