package application

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/domain"
	"github.com/seoscope/keywordrun/internal/pipeline"
)

const (
	acceptedArtifact = "latest_accepted.jsonl"
	reportArtifact   = "latest_report.json"
)

// WriteAccepted saves the approved candidates of a batch to
// latest_accepted.jsonl in dir, one JSON object per line. A candidate
// that fails to marshal is logged and skipped rather than losing the
// file.
func WriteAccepted(dir string, res *pipeline.BatchResult, log zerolog.Logger) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.WrapPersistenceError("persistence/create_artifact_dir", "creating artifact directory "+dir, err)
	}

	path := filepath.Join(dir, acceptedArtifact)
	file, err := os.Create(path)
	if err != nil {
		return "", domain.WrapPersistenceError("persistence/create_artifact", "creating artifact file "+path, err)
	}
	defer file.Close()

	written := 0
	for _, e := range res.Accepted {
		line, err := json.Marshal(e)
		if err != nil {
			log.Warn().Err(err).Str("keyword", e.Term).Msg("skipping unencodable candidate")
			continue
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return "", domain.WrapPersistenceError("persistence/write_artifact", "writing artifact file "+path, err)
		}
		written++
	}

	log.Info().
		Str("file", path).
		Int("accepted", written).
		Msg("accepted candidates saved")
	return path, nil
}

// WriteReport saves the batch report as latest_report.json in dir.
func WriteReport(dir string, report *pipeline.Report, log zerolog.Logger) (string, error) {
	if report == nil {
		return "", domain.NewInputError("input/missing_report", "batch carries no report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.WrapPersistenceError("persistence/create_artifact_dir", "creating artifact directory "+dir, err)
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", domain.WrapPersistenceError("persistence/encode_report", "encoding batch report", err)
	}

	path := filepath.Join(dir, reportArtifact)
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return "", domain.WrapPersistenceError("persistence/write_artifact", "writing artifact file "+path, err)
	}

	log.Info().Str("file", path).Msg("batch report saved")
	return path, nil
}
