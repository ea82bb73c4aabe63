package organizer

import (
	"fmt"
	"path/filepath"
	"strings"

	"log/slog"

	"juicenet/internal/logging"
	"juicenet/internal/nzb"
	"juicenet/internal/services"
)

// ValidatePlacement verifies that the organized NZB sits inside nzbDir and
// still parses with at least one file. This catches path logic bugs and
// truncated moves before the release is marked completed.
func ValidatePlacement(finalPath, nzbDir string, logger *slog.Logger) error {
	finalPath = strings.TrimSpace(finalPath)
	if finalPath == "" {
		return services.Wrap(services.ErrVerification, "organize", "validate placement", "final path is required", nil)
	}
	rel, err := filepath.Rel(nzbDir, finalPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		if logger != nil {
			logger.Error("nzb placed outside output directory",
				logging.String("final_path", finalPath),
				logging.String("nzb_dir", nzbDir),
				logging.String(logging.FieldEventType, "nzb_placement_invalid"),
				logging.String(logging.FieldErrorHint, "release id resolved to a path outside paths.nzb_dir"),
			)
		}
		return services.Wrap(services.ErrVerification, "organize", "validate placement",
			fmt.Sprintf("%q is outside %q", finalPath, nzbDir), nil)
	}

	doc, err := nzb.ParseFile(finalPath)
	if err != nil {
		return services.Wrap(services.ErrVerification, "organize", "validate placement", "organized nzb unreadable", err)
	}
	if len(doc.Files) == 0 {
		return services.Wrap(services.ErrVerification, "organize", "validate placement", "organized nzb lists no files", nil)
	}
	if logger != nil {
		logger.Debug("nzb placement validated",
			logging.String(logging.FieldEventType, "nzb_placement_validated"),
			logging.String("final_path", finalPath),
		)
	}
	return nil
}
