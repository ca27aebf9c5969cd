package matcache

// Options is a point-in-time snapshot of the OptionManager's recognized
// tunables, read fresh at the start of every refresh so a live operator
// change takes effect on the next scheduled pass without requiring a
// restart. MaxRetryHours is the exception: the Retry Ledger's expiry
// horizon is fixed from the value read when the Cache is constructed.
type Options struct {
	CacheEnabled       bool
	InitTimeoutSeconds int
	RetryMinutes       int
	MaxRetryHours      int
}

// DefaultOptions mirrors the values a fresh OptionManager would report if
// every option were left at its documented default; used by callers that
// want a usable Options value without standing up a real OptionManager
// (tests, local tools).
func DefaultOptions() Options {
	return Options{
		CacheEnabled:       true,
		InitTimeoutSeconds: 30,
		RetryMinutes:       60,
		MaxRetryHours:      24,
	}
}

// Validate reports the first invalid field, or nil if o is usable.
func (o Options) Validate() error {
	if o.InitTimeoutSeconds <= 0 {
		return &ConfigError{Field: "InitTimeoutSeconds", Value: o.InitTimeoutSeconds, Reason: "must be positive"}
	}
	if o.RetryMinutes <= 0 {
		return &ConfigError{Field: "RetryMinutes", Value: o.RetryMinutes, Reason: "must be positive"}
	}
	if o.MaxRetryHours <= 0 {
		return &ConfigError{Field: "MaxRetryHours", Value: o.MaxRetryHours, Reason: "must be positive"}
	}
	return nil
}

// loadOptions reads the current tunables from an OptionManager. A nil
// OptionManager yields DefaultOptions, so a Cache built without one still
// behaves sensibly in tests.
func loadOptions(om OptionManager) Options {
	if om == nil {
		return DefaultOptions()
	}
	return Options{
		CacheEnabled:       om.BoolOption(OptionCacheEnabled),
		InitTimeoutSeconds: om.IntOption(OptionInitTimeoutSeconds),
		RetryMinutes:       om.IntOption(OptionRetryMinutes),
		MaxRetryHours:      om.IntOption(OptionMaxRetryHours),
	}
}
