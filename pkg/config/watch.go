package config

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-decodes the config file read by v whenever it changes on disk
// and passes the result to onChange. Decoding errors are passed through
// with a nil config so the caller can keep its current settings.
//
// Watch returns false when v did not read a file.
func Watch(v *viper.Viper, onChange func(cfg *Config, err error)) bool {
	if v == nil || v.ConfigFileUsed() == "" {
		return false
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return true
}
