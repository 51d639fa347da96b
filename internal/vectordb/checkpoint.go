package vectordb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fyerfyer/advisor-rag/internal/document"
)

// CheckpointFile 检查点文件名
const CheckpointFile = "checkpoint.json"

// Checkpoint 已嵌入片段的持久化快照
// Key 相同说明语料、分片参数与嵌入模型均未变化，可以跳过嵌入
type Checkpoint struct {
	Key       string            `json:"key"`
	Model     string            `json:"model"`
	Dimension int               `json:"dimension"`
	CreatedAt time.Time         `json:"created_at"`
	Entries   []CheckpointEntry `json:"entries"`
}

// CheckpointEntry 检查点中的单个片段
type CheckpointEntry struct {
	Ordinal int       `json:"ordinal"`
	Start   int       `json:"start"`
	End     int       `json:"end"`
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
}

// CheckpointKey 计算语料、分片参数与模型名的内容哈希
func CheckpointKey(corpus string, maxChars, overlap int, model string) string {
	h := sha256.New()
	for _, part := range []string{corpus, strconv.Itoa(maxChars), strconv.Itoa(overlap), model} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewCheckpoint 从索引生成检查点
func NewCheckpoint(key string, index *Index) *Checkpoint {
	stats := index.Stats()
	cp := &Checkpoint{
		Key:       key,
		Model:     stats.Model,
		Dimension: stats.Dimension,
		CreatedAt: time.Now(),
		Entries:   make([]CheckpointEntry, 0, len(index.Entries())),
	}
	for _, e := range index.Entries() {
		cp.Entries = append(cp.Entries, CheckpointEntry{
			Ordinal: e.Chunk.Ordinal,
			Start:   e.Chunk.Start,
			End:     e.Chunk.End,
			Text:    e.Chunk.Text,
			Vector:  e.Vector,
		})
	}
	return cp
}

// IndexEntries 转换为索引条目
func (cp *Checkpoint) IndexEntries() []Entry {
	entries := make([]Entry, len(cp.Entries))
	for i, e := range cp.Entries {
		entries[i] = Entry{
			Chunk:  document.Chunk{Text: e.Text, Ordinal: e.Ordinal, Start: e.Start, End: e.End},
			Vector: e.Vector,
		}
	}
	return entries
}

// SaveCheckpoint 写入检查点，先写临时文件再重命名
func SaveCheckpoint(dir string, cp *Checkpoint) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, CheckpointFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, CheckpointFile))
}

// LoadCheckpoint 读取检查点，文件不存在时返回的错误满足 os.IsNotExist
func LoadCheckpoint(dir string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(dir, CheckpointFile))
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	return &cp, nil
}
