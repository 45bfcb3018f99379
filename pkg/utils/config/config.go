package config

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	log "github.com/goadb/hostbridge/pkg/utils/logger"
	"gopkg.in/yaml.v2"
)

var (
	APPNAME    string = "adb-host-bridge"
	VERSION    string = "undefined"
	BUILD_TIME string = "undefined"
	GO_VERSION string = "undefined"
)

// Config 主机端运行配置
type Config struct {
	// ListenAddr 监听地址；本仓库中没有代码读取此字段，也不启动任何监听
	ListenAddr string `yaml:"listen_addr"`
	// KeyDir 存放RSA私钥对的目录（用于设备认证）
	KeyDir string `yaml:"key_dir"`
	// DefaultMaxPayload 最大负载配置项；cmd/adb-host-cli不读取此字段，
	// 握手时始终提议wire.DefaultPayload
	DefaultMaxPayload int `yaml:"default_max_payload"`
	Logger            struct {
		Dir    string `yaml:"dir"`
		Level  string `yaml:"level"`
		Rotate bool   `yaml:"rotate"`
		// Strategy 选择Rotate=true时使用的切割策略："time"（默认，按天）或"size"
		Strategy   string `yaml:"strategy"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logger"`
}

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, APPNAME+", version: "+VERSION+" (built at "+BUILD_TIME+") "+GO_VERSION)
		flag.PrintDefaults()
	}
}

// Parse 从可执行文件目录或/etc下加载配置，若均不存在则返回零值配置
func Parse() *Config {
	ex, e := os.Executable()
	if e != nil {
		panic(e)
	}

	cfile := filepath.Dir(ex) + "/" + APPNAME + ".yml"
	if _, err := os.Stat(cfile); os.IsNotExist(err) {
		cfile = "/etc/" + APPNAME + ".yml"
	}

	conf := new(Config)
	data, err := ioutil.ReadFile(cfile)
	if err != nil {
		defer log.Sync()
		log.SetLevel(log.InfoLevel)
		return conf
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		panic(err)
	}

	defer log.Sync()
	if conf.Logger.Rotate {
		dir := conf.Logger.Dir
		if len(dir) == 0 {
			dir = filepath.Dir(ex)
		}
		logPath := dir + "/" + APPNAME + ".log"

		var out io.Writer
		if conf.Logger.Strategy == "size" {
			maxSize, maxBackups, maxAge := conf.Logger.MaxSizeMB, conf.Logger.MaxBackups, conf.Logger.MaxAgeDays
			if maxSize == 0 {
				maxSize = 100
			}
			out = log.NewProductionRotateBySize(logPath, maxSize, maxBackups, maxAge)
		} else {
			out = log.NewProductionRotateByTime(logPath)
		}
		logger := log.New(out, log.InfoLevel)
		log.ReplaceDefault(logger)
	}
	switch conf.Logger.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	return conf
}
