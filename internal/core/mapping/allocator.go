package mapping

import "github.com/portgate/go-portgate/pkg/types"

// NextPort 计算下一个可分配的外部端口
//
// 高水位策略：集合为空时返回起始端口，否则返回 max(已有端口)+1。
// 已删除映射释放的端口不会被重新使用，因此分配结果
// 可由空状态加有序分配日志确定性重建。
func NextPort(mappings []types.Mapping, startPort int) int {
	if len(mappings) == 0 {
		return startPort
	}

	max := 0
	for _, m := range mappings {
		if m.ExternalPort > max {
			max = m.ExternalPort
		}
	}
	return max + 1
}
