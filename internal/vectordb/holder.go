package vectordb

import "sync/atomic"

// Holder 持有当前生效的索引，重建时原子替换
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder 创建持有者，index 可以为 nil
func NewHolder(index *Index) *Holder {
	h := &Holder{}
	if index != nil {
		h.current.Store(index)
	}
	return h
}

// Load 返回当前索引，未就绪时返回 nil
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Acquire 返回当前索引并持有引用，调用方用完后必须调用 Release
// 未就绪时返回 nil
func (h *Holder) Acquire() *Index {
	for {
		index := h.current.Load()
		if index == nil {
			return nil
		}
		if index.Acquire() {
			return index
		}
		// 索引在读取后被替换，重新读取新索引
		if h.current.Load() == index {
			return nil
		}
	}
}

// Swap 替换当前索引并返回旧索引，由调用方负责 Retire
func (h *Holder) Swap(index *Index) *Index {
	return h.current.Swap(index)
}

// Ready 是否已有可用索引
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}
