package inference

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Models is the pair of capabilities the pipeline needs. It is built once at
// startup and shared read-only by every request; a capability that failed
// to load stays nil and is reported through the health endpoint.
type Models struct {
	Detector           Detector
	Classifier         Classifier
	SegmentationPath   string
	ClassificationPath string
}

func (m *Models) DetectorLoaded() bool {
	return m != nil && m.Detector != nil && m.Detector.Ready()
}

func (m *Models) ClassifierLoaded() bool {
	return m != nil && m.Classifier != nil && m.Classifier.Ready()
}

func (m *Models) Ready() bool {
	return m.DetectorLoaded() && m.ClassifierLoaded()
}

func (m *Models) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.Detector != nil {
		errs = append(errs, m.Detector.Close())
	}
	if m.Classifier != nil {
		errs = append(errs, m.Classifier.Close())
	}
	return errors.Join(errs...)
}

type FileCheck struct {
	SegmentationFileExists   bool   `json:"segmentation_model_file_exists"`
	ClassificationFileExists bool   `json:"classification_model_file_exists"`
	SegmentationPath         string `json:"segmentation_model_path"`
	ClassificationPath       string `json:"classification_model_path"`
	CurrentDirectory         string `json:"current_directory"`
}

// CheckFiles stats the configured model files. It has no side effects.
func (m *Models) CheckFiles() FileCheck {
	cwd, _ := os.Getwd()
	if m == nil {
		return FileCheck{CurrentDirectory: cwd}
	}
	return FileCheck{
		SegmentationFileExists:   fileExists(m.SegmentationPath),
		ClassificationFileExists: fileExists(m.ClassificationPath),
		SegmentationPath:         absPath(m.SegmentationPath),
		ClassificationPath:       absPath(m.ClassificationPath),
		CurrentDirectory:         cwd,
	}
}

// LogDiagnostics writes the startup model report.
func (m *Models) LogDiagnostics(log *logrus.Logger) {
	check := m.CheckFiles()
	log.WithFields(logrus.Fields{
		"current_directory":                check.CurrentDirectory,
		"segmentation_model_path":          check.SegmentationPath,
		"classification_model_path":        check.ClassificationPath,
		"segmentation_model_file_exists":   check.SegmentationFileExists,
		"classification_model_file_exists": check.ClassificationFileExists,
		"segmentation_model_loaded":        m.DetectorLoaded(),
		"classification_model_loaded":      m.ClassifierLoaded(),
	}).Info("Model diagnostics")

	if !m.Ready() {
		log.Error("Models were not initialized properly, /predict will answer 500")
	}
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
