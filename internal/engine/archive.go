package engine

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractScorePayload unpacks the primary score member of a compressed MXL
// container into plainPath. The first member outside the reserved META-INF
// metadata tree is the payload by convention.
func extractScorePayload(containerPath, plainPath string) error {
	reader, err := zip.OpenReader(containerPath)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer reader.Close()

	var payload *zip.File
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if strings.HasPrefix(member.Name, "META-INF/") {
			continue
		}
		payload = member
		break
	}
	if payload == nil {
		return fmt.Errorf("no score payload member in %s", filepath.Base(containerPath))
	}

	src, err := payload.Open()
	if err != nil {
		return fmt.Errorf("open payload member %s: %w", payload.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(plainPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(plainPath)
		return fmt.Errorf("extract payload: %w", err)
	}
	return dst.Close()
}
