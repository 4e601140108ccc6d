package export

import (
	"context"
	"encoding/json"
	"io"

	"nppestool/npdata"
)

func writeJSON(w io.Writer, providers []*npdata.Provider, opts Options) error {
	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	if providers == nil {
		providers = []*npdata.Provider{}
	}
	return enc.Encode(providers)
}

// writeJSONL writes one compact object per line.
func writeJSONL(ctx context.Context, w io.Writer, providers []*npdata.Provider) error {
	enc := json.NewEncoder(w)
	for i, p := range providers {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}
