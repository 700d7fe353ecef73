// Package seed 从 YAML 文件导入初始知识。
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// Entry 是种子文件中的一条事实。
type Entry struct {
	Question     string     `yaml:"question" json:"question"`
	Answer       string     `yaml:"answer" json:"answer"`
	Category     string     `yaml:"category" json:"category"`
	Confidence   *float64   `yaml:"confidence" json:"confidence,omitempty"`
	Source       string     `yaml:"source" json:"source,omitempty"`
	LastVerified *time.Time `yaml:"lastVerified" json:"lastVerified,omitempty"`
}

// File 是种子文件的结构。
type File struct {
	Facts []Entry `yaml:"facts" json:"facts"`
}

// Report 描述一次导入的结果。
type Report struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

const defaultConfidence = 0.8

// Load 读取并解析种子文件。
func Load(path string) ([]*models.Fact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse 解析 YAML，并校验每条事实。
func Parse(r io.Reader) ([]*models.Fact, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return file.Models()
}

// Models 把条目转换为事实并逐条校验。
func (file File) Models() ([]*models.Fact, error) {
	facts := make([]*models.Fact, 0, len(file.Facts))
	for i, e := range file.Facts {
		f := e.Fact()
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// Fact 把条目转换为待入库的事实。
func (e Entry) Fact() *models.Fact {
	f := &models.Fact{
		Question:     strings.TrimSpace(e.Question),
		Answer:       strings.TrimSpace(e.Answer),
		Category:     strings.TrimSpace(e.Category),
		Confidence:   defaultConfidence,
		LastVerified: e.LastVerified,
	}
	if e.Confidence != nil {
		f.Confidence = *e.Confidence
	}
	if e.Source != "" {
		src := e.Source
		f.Source = &src
	}
	return f
}

// Import 以一个批次写入事实，已存在的内容会被跳过。
// 每条新写入的事实记一条 manual 审计；审计失败只记录日志。
func Import(ctx context.Context, s store.Store, log audit.Log, l *logger.Logger, facts []*models.Fact) (Report, error) {
	var rep Report
	if len(facts) == 0 {
		return rep, nil
	}
	res, err := s.Apply(ctx, store.Batch{Insert: facts})
	if err != nil {
		return rep, err
	}
	rep.Inserted, rep.Duplicates = len(res.Inserted), len(res.Duplicates)

	if log != nil {
		for _, f := range res.Inserted {
			if err := log.Append(ctx, audit.FactEntry(models.UpdateAdd, models.TriggerManual, nil, f)); err != nil {
				l.WithError(err).Error("Failed to append seed audit entry")
			}
		}
	}
	l.WithPayload(map[string]interface{}{"inserted": rep.Inserted, "duplicates": rep.Duplicates}).Info("Knowledge seed imported")
	return rep, nil
}
