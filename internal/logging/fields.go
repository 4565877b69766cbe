package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// DocFields 提供单个文档操作的 action/id/url 字段。
func DocFields(action, id, url string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"doc_id": id,
		"url":    url,
	}
}

// BackupFields 标记快照相关日志。
func BackupFields(action, snapshot string) logrus.Fields {
	return logrus.Fields{
		"action":   action,
		"snapshot": snapshot,
	}
}

// RequestFields 提供请求方法/路径/状态码字段，供 HTTP 访问日志复用。
func RequestFields(method, path string, status int, requestID string) logrus.Fields {
	return logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     status,
		"request_id": requestID,
	}
}
