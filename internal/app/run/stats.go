package run

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/citefix/internal/config"
	"github.com/John-Robertt/citefix/internal/domain"
	"github.com/John-Robertt/citefix/internal/scan"
	"github.com/John-Robertt/citefix/internal/stats"
)

// Stats 只读统计：加载 → 扫描 → 计数。不匹配、不决定、不写任何文件。
//
// 硬错误与 Execute 相同；单个文件读取失败进入 Errors。
func Stats(ctx context.Context, eff config.EffectiveConfig, log zerolog.Logger) (domain.CitationStats, error) {
	started := time.Now().UTC()
	var errs []domain.RunError

	keys, ignore, err := loadRegistry(eff, log, &errs)
	if err != nil {
		return domain.CitationStats{Root: eff.Root, GeneratedAt: started}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.CitationStats{Root: eff.Root, GeneratedAt: started}, err
	}
	res, err := scan.Scan(eff.Root, eff.ExcludeDirs, eff.Ext, log)
	if err != nil {
		return domain.CitationStats{Root: eff.Root, GeneratedAt: started}, &Error{Code: domain.ErrCodeCorpusUnreadable, Path: eff.Root, Err: err}
	}
	for _, s := range res.Skipped {
		errs = append(errs, domain.RunError{Code: domain.ErrCodeReadFailed, File: s.RelPath, Msg: s.Err.Error()})
	}

	st := stats.Analyze(res.Occurrences, len(res.Documents), keys, ignore)
	st.Root = eff.Root
	st.GeneratedAt = started
	st.Errors = append(st.Errors, errs...)
	log.Debug().
		Int("citations", st.Summary.Citations).
		Int("uncited", st.Summary.Uncited).
		Int("missing", st.Summary.MissingKeys).
		Msg("统计完成")
	return st, nil
}
