package validation_test

import "time"

func unix(ts int64) time.Time { return time.Unix(ts, 0) }
