// Package journal 实现终端事件流水的异步 JSONL 落盘。
// 行情批次与订单事件可按需记录，供离线复盘使用。
// 热路径的 Write 只负责投递，JSON 编码与文件 I/O 在后台 goroutine 完成。
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// record 后台操作
type record struct {
	// payload 待编码写入的对象，nil 表示 flush/close 控制操作
	payload any
	// done flush/close 的完成通知通道
	done chan error
}

// Writer 异步 JSONL 写入器
type Writer struct {
	// path 输出文件路径
	path string
	// ch 操作通道
	ch chan record

	// closed 是否已关闭
	closed int32
	// sendMu 投递锁，保护关闭与投递的竞争
	sendMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewWriter 创建 JSONL 写入器
// 必要时创建输出目录，文件以追加模式打开
// 参数 path: 输出文件路径
// 参数 bufferSize: 投递通道缓冲区大小
func NewWriter(path string, bufferSize int) (*Writer, error) {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建流水目录失败: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开流水文件失败: %w", err)
	}

	w := &Writer{
		path: path,
		ch:   make(chan record, bufferSize),
	}

	w.wg.Add(1)
	go w.loop(f)

	return w, nil
}

// Write 异步写入一条流水记录
// 参数 v: 任意可 JSON 编码的对象
func (w *Writer) Write(v any) error {
	if w == nil {
		return fmt.Errorf("writer 为空")
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return fmt.Errorf("writer 已关闭")
	}
	w.ch <- record{payload: v}
	return nil
}

// Flush 强制刷新文件缓冲区
func (w *Writer) Flush() error {
	if w == nil {
		return nil
	}
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if atomic.LoadInt32(&w.closed) == 1 {
		return nil
	}
	done := make(chan error, 1)
	w.ch <- record{done: done}
	return <-done
}

// Close 关闭写入器（先刷新再关闭）
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		atomic.StoreInt32(&w.closed, 1)
		done := make(chan error, 1)
		w.ch <- record{done: done}
		close(w.ch)
		w.sendMu.Unlock()
		w.closeErr = <-done
	})
	w.wg.Wait()
	return w.closeErr
}

// loop 后台写入循环
func (w *Writer) loop(f *os.File) {
	defer w.wg.Done()
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20) // 1MB buffer
	var firstErr error

	for rec := range w.ch {
		if rec.payload == nil {
			// flush / close 控制操作
			err := bw.Flush()
			if err == nil {
				err = firstErr
			}
			if rec.done != nil {
				rec.done <- err
			}
			continue
		}

		data, err := json.Marshal(rec.payload)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("编码流水记录失败: %w", err)
			}
			continue
		}
		if _, err := bw.Write(data); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("写入流水失败: %w", err)
			}
			continue
		}
		if err := bw.WriteByte('\n'); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("写入流水失败: %w", err)
		}
	}
	_ = bw.Flush()
}
