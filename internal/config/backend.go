package config

// ConfigBackend stores persisted settings for askcards. Values are kept
// under dotted names such as "answer.base_url"; environment variables are
// applied on top and never written back.
//
// Getters report ok=false for an unset key. A value of the wrong type is
// an error, not a miss.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetBool(key string) (val bool, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetBool(key string, val bool) error
	Delete(key string) error
}
