package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"quantbt/internal/logger"
)

// Snapshot 是热加载后的只读配置快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   Config
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(Snapshot)

// Watcher 监听配置文件变更并广播新快照。
// 回测引擎不消费热更新，这里只服务常驻 server 模式。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatcher 读取配置并开始监听 FS 事件。
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path: path,
		v:    viper.New(),
		snapshot: Snapshot{
			Version:  1,
			LoadedAt: time.Now(),
			Config:   *cfg,
		},
	}
	w.v.SetConfigFile(path)
	if err := w.v.ReadInConfig(); err != nil {
		return nil, err
	}
	w.v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := Load(w.path)
		if err != nil {
			// 坏配置保留旧快照，只告警不中断。
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.mu.Lock()
		w.snapshot = Snapshot{
			Version:  w.snapshot.Version + 1,
			LoadedAt: time.Now(),
			Config:   *next,
		}
		w.mu.Unlock()
		w.notify()
	})
	w.v.WatchConfig()
	return w, nil
}

// Snapshot 返回当前配置快照。
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	snap := w.snapshot
	w.mu.Unlock()
	go safeNotify(fn, snap)
}

func (w *Watcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		go safeNotify(fn, snap)
	}
}

func safeNotify(fn ChangeListener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("config listener panic: %v", r)
		}
	}()
	fn(snap)
}
