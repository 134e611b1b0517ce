// Package core contains the integration domain: records, sync logs, the
// credential resolver and the sync audit logger. Storage, cipher and
// transport adapters depend on this package; core does not depend on them.
package core
