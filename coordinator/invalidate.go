package coordinator

import (
	"context"
	"strings"

	"github.com/Tsukikage7/jobhub/engine"
	"github.com/Tsukikage7/jobhub/job"
	"github.com/Tsukikage7/jobhub/logger"
)

// invalidateJobs 删除类型不受支持或 SDK 版本不匹配的任务.
//
// 单个任务的失败只记录日志，不影响其余任务；ctx 在每个任务处理后检查.
func (s *Service) invalidateJobs(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return canceledError(err)
	}
	s.log.Debug("[Coordinator] 开始清理失效任务")

	keys, err := s.engine.GetJobKeys(ctx)
	if err != nil {
		return engineError(err)
	}

	invalidated := 0
	for _, key := range keys {
		log := s.log.With(logger.String("jobId", string(key)))

		should, err := s.shouldInvalidate(ctx, key, log)
		if err == nil && should {
			_, err = s.engine.DeleteJob(ctx, key)
			if err == nil {
				invalidated++
				s.opts.metrics.RecordInvalidated()
				log.Info("[Coordinator] 任务已失效并删除")
			}
		}
		if err != nil {
			log.With(logger.Err(err)).Error("[Coordinator] 无法清理任务")
		}

		if err := ctx.Err(); err != nil {
			s.log.With(logger.Int("invalidated", invalidated)).Warn("[Coordinator] 清理被取消，闸门保持关闭")
			return canceledError(err)
		}
	}

	s.log.With(
		logger.Int("jobs", len(keys)),
		logger.Int("invalidated", invalidated),
	).Info("[Coordinator] 失效任务清理完成")
	return nil
}

// shouldInvalidate 判断任务是否需要失效.
func (s *Service) shouldInvalidate(ctx context.Context, key job.Key, log logger.Logger) (bool, error) {
	detail, err := s.engine.GetJobDetail(ctx, key)
	if engine.IsUnloadable(err) {
		log.With(logger.Err(err)).Warn("[Coordinator] 任务无法加载，需要失效")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	version := detail.Descriptor.ProducerVersion
	if strings.TrimSpace(version) == "" {
		log.Warn("[Coordinator] 任务由旧版 SDK 注册（无版本信息），需要失效")
		return true, nil
	}
	if version != s.opts.version {
		log.With(
			logger.String("producerVersion", version),
			logger.String("version", s.opts.version),
		).Warn("[Coordinator] 任务 SDK 版本不匹配，需要失效")
		return true, nil
	}
	return false, nil
}
