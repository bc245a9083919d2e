// Package mapping 提供映射存储与端口分配的实现
//
// (host, protocol) → 外部端口 的持久注册表，落盘为单个扁平 JSON 文件。
// Resolve 在存储锁内完成 查找→分配→持久化 的读改写序列，
// 对并发调用线性化。
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/portgate/go-portgate/config"
	"github.com/portgate/go-portgate/internal/util/logger"
	"github.com/portgate/go-portgate/pkg/interfaces"
	"github.com/portgate/go-portgate/pkg/types"
)

var log = logger.Logger("core/mapping")

// schemaVersion 存储文件 schema 版本
const schemaVersion = 1

// storeSchema 存储文件 schema
type storeSchema struct {
	Version   int             `json:"version"`
	UpdatedAt int64           `json:"updated_at"`
	Mappings  []types.Mapping `json:"mappings"`
}

// ============================================================================
//                              FileStore
// ============================================================================

// FileStore 基于扁平 JSON 文件的映射存储
type FileStore struct {
	// 存储路径
	path string

	// 起始外部端口
	startPort int

	// 内存缓存，键为 host|protocol
	mappings map[string]types.Mapping
	loaded   bool
	mu       sync.Mutex
}

// 确保实现接口
var _ interfaces.MappingStore = (*FileStore)(nil)

// NewFileStore 创建映射存储
func NewFileStore(cfg config.StoreConfig) *FileStore {
	return &FileStore{
		path:      cfg.Path,
		startPort: cfg.StartPort,
		mappings:  make(map[string]types.Mapping),
	}
}

// Resolve 返回键已有的外部端口；不存在时分配、持久化并返回
//
// 整个 查找→分配→持久化 序列持有存储锁，并发的同键请求
// 只会产生一次分配，其余调用观察到胜者的结果。
// 持久化失败时内存分配回滚，错误返回给调用方。
func (s *FileStore) Resolve(host string, protocol types.Protocol) (int, error) {
	if !protocol.Valid() {
		return 0, fmt.Errorf("%w: %q", types.ErrUnsupportedProtocol, protocol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	key := types.MappingKey(host, protocol)
	if m, ok := s.mappings[key]; ok {
		return m.ExternalPort, nil
	}

	port := NextPort(s.snapshotLocked(), s.startPort)
	s.mappings[key] = types.Mapping{
		Host:         host,
		Protocol:     protocol,
		ExternalPort: port,
	}

	if err := s.persistLocked(); err != nil {
		// 持久化失败，分配不生效
		delete(s.mappings, key)
		return 0, fmt.Errorf("persist mapping: %w", err)
	}

	log.Info("已分配外部端口", "host", host, "protocol", protocol, "port", port)
	return port, nil
}

// Load 返回完整映射集合
//
// 首次调用时从磁盘读取；文件缺失或损坏按空集合处理。
func (s *FileStore) Load() ([]types.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	return s.snapshotLocked(), nil
}

// Persist 全量落盘，替换原有内容
//
// 失败时内存状态回滚到调用前的集合。
func (s *FileStore) Persist(mappings []types.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	prev := s.mappings
	next := make(map[string]types.Mapping, len(mappings))
	for _, m := range mappings {
		next[m.Key()] = m
	}
	s.mappings = next

	if err := s.persistLocked(); err != nil {
		s.mappings = prev
		return fmt.Errorf("persist mappings: %w", err)
	}
	return nil
}

// Delete 管理性删除一条映射
//
// 返回被释放的外部端口；释放的端口不会被重新分配（高水位策略）。
func (s *FileStore) Delete(host string, protocol types.Protocol) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked()

	key := types.MappingKey(host, protocol)
	m, ok := s.mappings[key]
	if !ok {
		return 0, false, nil
	}

	delete(s.mappings, key)
	if err := s.persistLocked(); err != nil {
		s.mappings[key] = m
		return 0, false, fmt.Errorf("persist mappings: %w", err)
	}

	log.Info("已删除映射", "host", host, "protocol", protocol, "port", m.ExternalPort)
	return m.ExternalPort, true, nil
}

// ============================================================================
//                              内部方法
// ============================================================================

// ensureLoadedLocked 惰性加载存储文件（调用方须持锁）
//
// 文件缺失、损坏或版本不识别均按"尚无映射"处理，不是致命错误。
func (s *FileStore) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("存储文件不存在，使用空状态", "path", s.path)
		} else {
			log.Warn("读取存储文件失败，使用空状态", "path", s.path, "err", err)
		}
		return
	}

	var schema storeSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		log.Warn("解析存储文件失败，使用空状态", "path", s.path, "err", err)
		return
	}

	if schema.Version != schemaVersion {
		log.Warn("存储文件版本不匹配，使用空状态",
			"fileVersion", schema.Version,
			"expectedVersion", schemaVersion)
		return
	}

	for _, m := range schema.Mappings {
		s.mappings[m.Key()] = m
	}

	log.Info("已加载映射存储", "count", len(s.mappings), "path", s.path)
}

// persistLocked 原子写存储文件（调用方须持锁）
func (s *FileStore) persistLocked() error {
	schema := storeSchema{
		Version:   schemaVersion,
		UpdatedAt: time.Now().Unix(),
		Mappings:  s.snapshotLocked(),
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store data: %w", err)
	}

	// 确保目录存在
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	// 原子写
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace store file: %w", err)
	}

	log.Debug("已保存映射存储", "count", len(s.mappings), "path", s.path)
	return nil
}

// snapshotLocked 返回按外部端口排序的映射副本（调用方须持锁）
func (s *FileStore) snapshotLocked() []types.Mapping {
	result := make([]types.Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExternalPort < result[j].ExternalPort
	})
	return result
}
