package storage

import (
	"context"
	"sort"

	"github.com/jdziat/protoflow/pkg/core"
)

// FunctionStats returns per-function run counts grouped by status.
func (s *GormStorage) FunctionStats(ctx context.Context) ([]*core.FunctionStats, error) {
	type row struct {
		ImportPath   string
		FunctionName string
		Status       string
		Count        int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Run{}).
		Select("import_path, function_name, status, count(*) as count").
		Group("import_path, function_name, status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	statsMap := make(map[core.FunctionKey]*core.FunctionStats)
	for _, r := range rows {
		key := core.FunctionKey{ImportPath: r.ImportPath, FunctionName: r.FunctionName}
		fs, ok := statsMap[key]
		if !ok {
			fs = &core.FunctionStats{FunctionKey: key}
			statsMap[key] = fs
		}
		switch core.RunStatus(r.Status) {
		case core.RunRunning:
			fs.Running += r.Count
		case core.RunCompleted:
			fs.Completed += r.Count
		case core.RunFailed:
			fs.Failed += r.Count
		}
	}

	result := make([]*core.FunctionStats, 0, len(statsMap))
	for _, fs := range statsMap {
		result = append(result, fs)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result, nil
}
