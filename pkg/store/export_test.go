package store

import gormlogger "gorm.io/gorm/logger"

func levelName(l gormlogger.LogLevel) string {
	switch l {
	case gormlogger.Silent:
		return "silent"
	case gormlogger.Error:
		return "error"
	case gormlogger.Warn:
		return "warn"
	default:
		return "info"
	}
}
