package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/xerrors"
)

const watchBuffer = 10

// watchedKey 一个被监听 key 的最近取值与订阅者
type watchedKey struct {
	last any
	subs []chan Event
}

type loader struct {
	v      *viper.Viper
	cfg    *Config
	logger clog.Logger

	mu      sync.Mutex
	watched map[string]*watchedKey
}

func newLoader(cfg *Config, logger clog.Logger) *loader {
	return &loader{
		v:       viper.New(),
		cfg:     cfg,
		logger:  logger,
		watched: make(map[string]*watchedKey),
	}
}

func (l *loader) Load(context.Context) error {
	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)
	for _, path := range l.cfg.Paths {
		l.v.AddConfigPath(path)
	}

	// ROUTESYNC_NAMING_NAMESPACE 覆盖 naming.namespace
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if loaded := l.loadDotEnv(); len(loaded) > 0 {
		l.logger.Debug("dotenv loaded", clog.Strings("files", loaded))
	}

	if err := l.read(l.v.ReadInConfig, l.cfg.Name); err != nil {
		return err
	}
	if err := l.mergeEnvironment(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	if l.v.ConfigFileUsed() != "" {
		l.v.OnConfigChange(l.onFileChange)
		l.v.WatchConfig()
	}
	return nil
}

// read 文件不存在只记录日志，其余错误返回
func (l *loader) read(fn func() error, name string) error {
	err := fn()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return nil
	case xerrors.As(err, &notFound):
		l.logger.Info("config file not found", clog.String("name", name), clog.Strings("paths", l.cfg.Paths))
		return nil
	default:
		return xerrors.Wrapf(err, "read config %s", name)
	}
}

// loadDotEnv 加载工作目录和各搜索路径下存在的 .env，已有的环境变量不会被覆盖
func (l *loader) loadDotEnv() []string {
	candidates := []string{".env"}
	for _, path := range l.cfg.Paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}

	var loaded []string
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil || slices.Contains(loaded, file) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			l.logger.Warn("dotenv load failed", clog.String("file", file), clog.Error(err))
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// mergeEnvironment 叠加 {name}.{ENV}，ENV 取自 {PREFIX}_ENV
func (l *loader) mergeEnvironment() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" {
		return nil
	}

	name := l.cfg.Name + "." + env
	l.v.SetConfigName(name)
	defer l.v.SetConfigName(l.cfg.Name)
	return l.read(l.v.MergeInConfig, name)
}

func (l *loader) onFileChange(e fsnotify.Event) {
	l.logger.Info("config file changed", clog.String("file", e.Name), clog.String("op", e.Op.String()))
	if err := l.mergeEnvironment(); err != nil {
		l.logger.Error("environment config reload failed", clog.Error(err))
	}
	l.publish(time.Now())
}

func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

func (l *loader) Unmarshal(v any) error {
	return l.v.Unmarshal(v)
}

func (l *loader) UnmarshalKey(key string, v any) error {
	return l.v.UnmarshalKey(key, v)
}

// Watch 订阅 key 的变化，订阅者消费过慢时丢弃事件
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if key == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "watch key is empty")
	}

	ch := make(chan Event, watchBuffer)
	l.mu.Lock()
	w, ok := l.watched[key]
	if !ok {
		w = &watchedKey{last: l.v.Get(key)}
		l.watched[key] = w
	}
	w.subs = append(w.subs, ch)
	l.mu.Unlock()

	context.AfterFunc(ctx, func() { l.unwatch(key, ch) })
	return ch, nil
}

func (l *loader) unwatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.watched[key]
	if !ok {
		return
	}
	if i := slices.Index(w.subs, ch); i >= 0 {
		w.subs = slices.Delete(w.subs, i, i+1)
		close(ch)
	}
	if len(w.subs) == 0 {
		delete(l.watched, key)
	}
}

func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrap(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

// publish 只向取值真正变化的 key 推送
func (l *loader) publish(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.watched {
		current := l.v.Get(key)
		if reflect.DeepEqual(w.last, current) {
			continue
		}
		ev := Event{Key: key, Value: current, OldValue: w.last, Source: "file", Timestamp: at}
		w.last = current

		for _, ch := range w.subs {
			select {
			case ch <- ev:
			default:
				l.logger.Warn("config watcher lagging, event dropped", clog.String("key", key))
			}
		}
	}
}
