package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ImageFields 提供 bucket/url 字段，供缓存与预取日志复用。
func ImageFields(bucket, url string) logrus.Fields {
	return logrus.Fields{
		"bucket": bucket,
		"url":    url,
	}
}
