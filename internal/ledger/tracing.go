package ledger

import (
	"fmt"
	"hash/fnv"
	"time"
)

// NewTracingID builds an id of the form <prefix>_<yyyyMMddHHmmssSSS>_<hhhh>
// where the trailing component is a four digit hash of the keyword. The same
// keyword at the same millisecond always yields the same id, which keeps
// replayed batches correlatable across log files.
func NewTracingID(prefix, keyword string, at time.Time) string {
	at = at.UTC()
	h := fnv.New32a()
	h.Write([]byte(keyword))
	return fmt.Sprintf("%s_%s%03d_%04d",
		prefix,
		at.Format("20060102150405"),
		at.Nanosecond()/int(time.Millisecond),
		h.Sum32()%10000)
}
