package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/xaionaro-go/dtln/pkg/audio/codec"
)

type formatFlag codec.Format

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string {
	if codec.Format(*f) == codec.FormatUndefined {
		return "auto"
	}
	return codec.Format(*f).String()
}

func (f *formatFlag) Set(s string) error {
	if s == "auto" {
		*f = formatFlag(codec.FormatUndefined)
		return nil
	}
	format := codec.FormatFromString(s)
	if format == codec.FormatUndefined {
		return fmt.Errorf("unknown format %q", s)
	}
	*f = formatFlag(format)
	return nil
}

func (*formatFlag) Type() string {
	return "format"
}

// resolve falls back to guessing by the file extension.
func (f formatFlag) resolve(path string) (codec.Format, error) {
	if codec.Format(f) != codec.FormatUndefined {
		return codec.Format(f), nil
	}
	format := codec.FormatFromPath(path)
	if format == codec.FormatUndefined {
		return format, fmt.Errorf("unable to guess the format of %q, please specify it explicitly", path)
	}
	return format, nil
}
