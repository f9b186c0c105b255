// Package types holds the wire-level vocabulary shared by every other
// package: permission levels, request opcodes, response codes, and the
// charset/length constants that bound every field the protocol carries.
//
// These mirror the wire protocol's on-disk constants byte for byte; they
// are the single place that vocabulary is allowed to live.
package types

// Permission is the access level granted to an authenticated session.
type Permission byte

const (
	NoPermission   Permission = '0'
	ReadOnly       Permission = '1'
	ReadWrite      Permission = '2'
)

// RequestOp identifies the kind of frame a client sent after login.
type RequestOp byte

const (
	OpTokenLogin RequestOp = '0'
	OpSearch     RequestOp = '1'
	OpAdd        RequestOp = '2'
	OpDelete     RequestOp = '3'
)

// ResponseStatus is the leading byte of every response frame.
type ResponseStatus byte

const (
	RespSuccess     ResponseStatus = '0'
	RespFail        ResponseStatus = '1'
	RespInvalidReq  ResponseStatus = '2'
	RespInvalidUser ResponseStatus = '3'
	RespInvalidPass ResponseStatus = '4'
	RespTooManyTry  ResponseStatus = '5'
)

// StoreKind distinguishes the validation rules applied to keys/values.
type StoreKind int

const (
	// MainKind: name -> comma separated phone numbers.
	MainKind StoreKind = iota
	// UserKind: username -> password hash (used for both the privileged
	// and normal user stores).
	UserKind
)

// Field separators and limits, taken verbatim from the C header.
const (
	SingleNumSeparator = ','
	KeyValueSeparator  = ':'
	QueryItemsSep      = ';'

	MaxGenericLen = 100
	MaxNameLen    = MaxGenericLen
	MaxNumLen     = 14
	MaxNNums      = 10
	MaxUsernameLen = MaxGenericLen
	MinPasswordLen = 7
	MaxPasswordLen = MaxGenericLen
	HashLen        = 86

	MaxNumsLen      = (MaxNumLen+1)*MaxNNums - 1
	MaxMainRecLen   = MaxNameLen + 1 + MaxNumsLen
	MaxUserRecLen   = MaxUsernameLen + 1 + HashLen

	BuffSize      = 4096
	SessionTokenLen = 80

	// StoreCapacityBits is P: a store holds at most 2^P records.
	StoreCapacityBits = 16
	StoreCapacityMax  = 1 << StoreCapacityBits

	DefaultServerPort = 34334

	// Directory-wide tuning knobs.
	MaxReaders         = 20   // K
	AuthRateLimitSecs  = 5    // F
	MaxLoginAttempts   = 5    // T
	WriterAcquireDeadlineSecs = 12 // D
	ShutdownDeadlineSecs      = 30 // M

	ReadTimeoutSecs  = 300
	WriteTimeoutSecs = 10
)

const (
	NameCharsetExtra     = " '"
	UsernameCharsetExtra = "-_"
	PasswordCharsetExtra = "-_<'>?/#&@+-=()[]{}"
	HashCharsetExtra     = "./"
	RandCharsetFull      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_<'>?/#&@+-=()[]{}"
)
