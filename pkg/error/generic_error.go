package error

// GenericError is implemented by errors that know their REST mapping.
type GenericError interface {
	ErrCode() string
	StatusCode() int
	Error() string
}
