// Package stash binds in-memory reactive values to durable key-value storage.
//
// The core type is Binding, which owns one durable key, hydrates a typed value
// from it on first use, and mirrors every write back to the backend while the
// in-memory value stays immediately readable.
//
// # Binding
//
// A Binding keeps a reactive cell and a durable slot in step:
//
//	Backend.Get → Decode → Validate → Cell        (hydration, once)
//	Write → Encode → Cell → Pipeline → Backend.Set (every write)
//
// Hydration never fails from the caller's point of view. An absent slot, a
// slot holding corrupted data, or an unreachable backend all yield the
// fallback value; corrupted data is left in place for inspection and the
// failure is reported as a Diagnostic.
//
// Writes update memory before the backend is called and are never rolled
// back. A failed persist is returned to the caller as a *PersistError so it can
// decide to retry or warn; the Binding does not retry unless a pipeline option
// such as WithRetry asks it to.
//
// # State Machine
//
// Binding maintains one of these states:
//
//   - Pending: not hydrated yet
//   - Empty: slot absent, fallback in memory
//   - Synced: memory matches the durable slot
//   - Degraded: hydration fell back because of corruption or an outage
//   - Unsynced: the last write did not persist
//   - Closed: torn down, writes rejected
//
// # Backends
//
// The Backend interface abstracts durable storage. The core package provides
// MemoryBackend. Additional backends live in pkg/:
//
//   - pkg/file: one file per key, fsnotify watcher
//   - pkg/redis: Redis strings, keyspace notifications
//   - pkg/postgres: key-value table, LISTEN/NOTIFY
//   - pkg/nats: NATS JetStream KV
//   - pkg/etcd: etcd KV and Watch API
//   - pkg/consul: Consul KV and blocking queries
//   - pkg/zookeeper: ZooKeeper nodes
//   - pkg/kubernetes: ConfigMap data keys
//   - pkg/gormkv: any GORM database (SQLite by default)
//
// # Example
//
//	type User struct {
//	    Name  string `json:"name"`
//	    Email string `json:"email"`
//	}
//
//	user := stash.New(backend, "user", User{})
//	defer user.Close()
//
//	current := user.Read() // fallback until the first write
//
//	if err := user.Write(ctx, User{Name: "Ana", Email: "a@x.com"}); err != nil {
//	    log.Printf("profile not saved: %v", err) // memory already updated
//	}
package stash
