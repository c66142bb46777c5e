package climate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const stagePrefix = "prismDownloader"

// Retrieve transfers the selected entry into a fresh staging directory under
// stageRoot and hands it to the installer. The staging directory is removed
// on every return path. A failed transfer never reaches the installer.
func Retrieve(ctx context.Context, p SourceProvider, inst Installer, stageRoot string, sel Selection) (res InstallResult, err error) {
	if err := os.MkdirAll(stageRoot, 0o750); err != nil {
		return res, fmt.Errorf("create stage root: %w", err)
	}
	stageDir, err := os.MkdirTemp(stageRoot, stagePrefix)
	if err != nil {
		return res, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stageDir); rmErr != nil && err == nil {
			err = fmt.Errorf("remove staging dir: %w", rmErr)
		}
	}()

	staged := filepath.Join(stageDir, sel.Entry)
	if err := transfer(ctx, p, sel, staged); err != nil {
		return res, err
	}

	res, err = inst.Install(ctx, staged, sel.Descriptor)
	if err != nil {
		return res, fmt.Errorf("install %s: %w", sel.Entry, err)
	}
	return res, nil
}

func transfer(ctx context.Context, p SourceProvider, sel Selection, staged string) error {
	f, err := os.OpenFile(staged, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return &TransferError{Entry: sel.Entry, Err: err}
	}
	d := sel.Descriptor
	if err := p.FetchCandidate(ctx, d.Variable, d.Date, sel.Entry, f); err != nil {
		f.Close()
		return &TransferError{Entry: sel.Entry, Err: err}
	}
	if err := f.Close(); err != nil {
		return &TransferError{Entry: sel.Entry, Err: err}
	}
	return nil
}
