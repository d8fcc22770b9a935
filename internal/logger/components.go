package logger

// Component-prefixed helpers so grep-able log lines stay consistent across
// packages that log through the package-level logger.

func LLMDebug(format string, v ...interface{}) { base.Debugf("[LLM] "+format, v...) }
func LLMInfo(format string, v ...interface{})  { base.Infof("[LLM] "+format, v...) }
func LLMWarn(format string, v ...interface{})  { base.Warnf("[LLM] "+format, v...) }
func LLMError(format string, v ...interface{}) { base.Errorf("[LLM] "+format, v...) }

func RAGDebug(format string, v ...interface{}) { base.Debugf("[RAG] "+format, v...) }
func RAGInfo(format string, v ...interface{})  { base.Infof("[RAG] "+format, v...) }
func RAGWarn(format string, v ...interface{})  { base.Warnf("[RAG] "+format, v...) }
func RAGError(format string, v ...interface{}) { base.Errorf("[RAG] "+format, v...) }

func TelegramDebug(format string, v ...interface{}) { base.Debugf("[Telegram] "+format, v...) }
func TelegramInfo(format string, v ...interface{})  { base.Infof("[Telegram] "+format, v...) }
func TelegramWarn(format string, v ...interface{})  { base.Warnf("[Telegram] "+format, v...) }
func TelegramError(format string, v ...interface{}) { base.Errorf("[Telegram] "+format, v...) }

func APIDebug(format string, v ...interface{}) { base.Debugf("[API] "+format, v...) }
func APIInfo(format string, v ...interface{})  { base.Infof("[API] "+format, v...) }
func APIWarn(format string, v ...interface{})  { base.Warnf("[API] "+format, v...) }
func APIError(format string, v ...interface{}) { base.Errorf("[API] "+format, v...) }
