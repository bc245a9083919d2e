// Package bootstrap 提供启动恢复
//
// 进程启动时从映射存储重建所有监听器。恢复是显式、可单独调用的
// 操作，并且幂等：对已在运行的端口，Ensure 是无操作。
package bootstrap

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("core/bootstrap")

// Run 从映射存储重建所有监听器
//
// 每条映射并发、独立地恢复：单条失败不会阻塞其他映射，
// 只记入汇总。协议不识别的陈旧记录被跳过并告警，不是致命错误。
func Run(ctx context.Context, store interfaces.MappingStore, registry interfaces.ProxyRegistry) (types.BootstrapSummary, error) {
	mappings, err := store.Load()
	if err != nil {
		return types.BootstrapSummary{}, err
	}

	var started, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range mappings {
		m := m

		internalPort, ok := m.Protocol.InternalPort()
		if !ok {
			log.Warn("跳过协议不识别的映射",
				"host", m.Host,
				"protocol", m.Protocol,
				"port", m.ExternalPort)
			skipped.Add(1)
			continue
		}

		g.Go(func() error {
			if err := registry.Ensure(gctx, m.ExternalPort, m.Host, internalPort); err != nil {
				log.Warn("恢复监听器失败",
					"host", m.Host,
					"protocol", m.Protocol,
					"port", m.ExternalPort,
					"err", err)
				failed.Add(1)
				// 单条失败不中断其他映射的恢复
				return nil
			}
			started.Add(1)
			return nil
		})
	}

	_ = g.Wait()

	summary := types.BootstrapSummary{
		Started: int(started.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}

	log.Info("启动恢复完成",
		"started", summary.Started,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary, nil
}
