package service

import (
	"fmt"
	"path"
	"strings"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
)

// outputNamer hands out unique archive names. Names are assigned in input
// order, so the same batch always yields the same names.
type outputNamer struct {
	used map[string]struct{}
}

func newOutputNamer() *outputNamer {
	return &outputNamer{used: make(map[string]struct{})}
}

func (n *outputNamer) name(idx int, original string, format entity.Format) string {
	name := OutputName(original, format)
	if _, taken := n.used[name]; taken {
		name = fmt.Sprintf("%02d_%s", idx+1, name)
	}
	for i := 2; ; i++ {
		if _, taken := n.used[name]; !taken {
			break
		}
		name = fmt.Sprintf("%02d_%d_%s", idx+1, i, OutputName(original, format))
	}
	n.used[name] = struct{}{}
	return name
}

// OutputName builds compressed_<stem>.<ext> from an uploaded file name,
// dropping any directory part.
func OutputName(original string, format entity.Format) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.TrimSpace(stem)
	if stem == "" || stem == "." || stem == "/" {
		stem = "image"
	}
	return "compressed_" + stem + "." + format.Extension()
}
