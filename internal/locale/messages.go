package locale

// Message keys used outside this package.
const (
	ConfNoKey      = "confNoKey"
	ConfInvVal     = "confInvVal"
	ConfSet        = "confSet"
	ConfReset      = "confReset"
	ConfRollback   = "confRollback"
	ConfListHeader = "confListHeader"
	ConfGlobal     = "confGlobal"
)

var builtin = map[string]map[string]string{
	"en": {
		ConfNoKey:      `There is no config key "%s".`,
		ConfInvVal:     `Invalid value for "%s". Allowed values: %s.`,
		ConfSet:        `%s = %s`,
		ConfReset:      `Local settings were reset to their defaults.`,
		ConfRollback:   `The server rejected "%s"; reverted to %s.`,
		ConfListHeader: `Terminal settings:`,
		ConfGlobal:     `(global)`,
	},
	"ru": {
		ConfNoKey:      `Ключ настроек "%s" не существует.`,
		ConfInvVal:     `Недопустимое значение для "%s". Допустимые значения: %s.`,
		ConfSet:        `%s = %s`,
		ConfReset:      `Локальные настройки сброшены к значениям по умолчанию.`,
		ConfRollback:   `Сервер отклонил "%s"; восстановлено значение %s.`,
		ConfListHeader: `Настройки терминала:`,
		ConfGlobal:     `(глобальная)`,
	},
	"de": {
		ConfNoKey:      `Der Konfigurationsschlüssel "%s" existiert nicht.`,
		ConfInvVal:     `Ungültiger Wert für "%s". Erlaubte Werte: %s.`,
		ConfSet:        `%s = %s`,
		ConfReset:      `Lokale Einstellungen wurden zurückgesetzt.`,
		ConfRollback:   `Der Server hat "%s" abgelehnt; zurückgesetzt auf %s.`,
		ConfListHeader: `Terminal-Einstellungen:`,
		ConfGlobal:     `(global)`,
	},
}
