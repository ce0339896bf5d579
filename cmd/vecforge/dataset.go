package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/vecforge/dataset"
	"github.com/hupe1980/vecforge/errs"
)

// datasetFormat resolves "auto" from the file extension.
func datasetFormat(path, format string) (string, error) {
	switch strings.ToLower(format) {
	case "raw", "arrow":
		return strings.ToLower(format), nil
	case "", "auto":
		if strings.EqualFold(filepath.Ext(path), ".arrow") {
			return "arrow", nil
		}
		return "raw", nil
	default:
		return "", errs.Configuration("cli.dataset", "format", "unknown dataset format %q (want raw or arrow)", format)
	}
}

// loadDataset reads a raw float32 file of dimension dim or an Arrow IPC file.
// The vector count of a raw file follows from its size.
func loadDataset(path, format string, dim int) (*dataset.Dataset, error) {
	const op = "cli.load_dataset"
	format, err := datasetFormat(path, format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.IO(op, path, err)
	}
	defer func() { _ = f.Close() }()

	if format == "arrow" {
		return dataset.ReadArrow(f)
	}

	if dim <= 0 {
		return nil, errs.Configuration(op, "dim", "raw datasets need --dim")
	}
	st, err := f.Stat()
	if err != nil {
		return nil, errs.IO(op, path, err)
	}
	row := dataset.RawSize(1, dim)
	if st.Size()%row != 0 {
		return nil, errs.Configuration(op, "dim", "%s holds %d bytes, not a multiple of %d-dimensional rows", path, st.Size(), dim)
	}
	return dataset.ReadRaw(f, int(st.Size()/row), dim)
}

// writeDataset writes ds to path in the given format.
func writeDataset(path, format string, ds *dataset.Dataset) error {
	const op = "cli.write_dataset"
	format, err := datasetFormat(path, format)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.IO(op, path, err)
	}
	if format == "arrow" {
		err = dataset.WriteArrow(f, ds)
	} else {
		err = dataset.WriteRaw(f, ds)
	}
	if cerr := f.Close(); err == nil {
		err = errs.IO(op, path, cerr)
	}
	return err
}
