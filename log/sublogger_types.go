package log

// Global vars related to the logger package
var (
	ConfigMgr *SubLogger
	DataMgr   *SubLogger
	ScriptMgr *SubLogger
	TaskMgr   *SubLogger
	Server    *SubLogger
)
