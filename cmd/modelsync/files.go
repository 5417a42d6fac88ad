package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/modelsync/modelsync"
	"github.com/modelsync/modelsync/internal/codec"
	"github.com/modelsync/modelsync/pkg/wire"
)

// decodeFile reads path into dst, picking the encoding from the extension:
// .yaml/.yml, .cbor, and JSON for anything else.
func decodeFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yaml.YAMLToJSON(data); err != nil {
			return err
		}
		return wire.JSON().Unmarshal(data, dst)
	case ".cbor":
		return wire.CBOR().Unmarshal(data, dst)
	}
	return wire.JSON().Unmarshal(data, dst)
}

func readSnapshot(path string) (*modelsync.Snapshot, error) {
	var snap modelsync.Snapshot
	if err := decodeFile(path, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func readPatch(path string) (*modelsync.Patch, error) {
	var p modelsync.Patch
	if err := decodeFile(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// outputCodec resolves --format. JSON output is indented.
func outputCodec(format string) (codec.Codec, error) {
	c, ok := wire.ByName(format)
	if !ok {
		return codec.Codec{}, errUnknownFormat(format)
	}
	if c.Name == "json" {
		c.Marshaler = wire.JSONMarshaler{Indent: "  "}
	}
	return c, nil
}

// writeOutput encodes v to path, or to the command output when path is empty.
func (a *app) writeOutput(path string, v any) error {
	c, err := outputCodec(a.format)
	if err != nil {
		return err
	}
	data, err := c.Marshal(v)
	if err != nil {
		return err
	}
	if !c.Binary {
		data = append(data, '\n')
	}
	if path == "" {
		_, err = a.out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
