package record

import "time"

// Keys of the persisted app record
const (
	KeyCreatedTime                 = "created_time"
	KeyLastCheckTime               = "last_check_time"
	KeyLastRequestCompletionTime   = "last_request_completion_time"
	KeyLastRequestSucceeded        = "last_request_succeeded"
	KeyApprovedIdentityHash        = "approved_identity_hash"
	KeyRelaxUpdates                = "relax_updates"
	KeyLastRequestedRuntimeVersion = "last_requested_runtime_version"
	KeyForceUpdate                 = "force_update"
	KeyUpdateScheduled             = "update_scheduled"
	KeyPendingRequestPath          = "pending_request_path"
	KeyPackageName                 = "package_name"
)

// Record is the durable state of one app. Timestamps are stored with millisecond
// precision; a zero time means "never".
type Record struct {
	AppID       string `json:"appId"`
	PackageName string `json:"packageName,omitempty"`

	CreatedTime               time.Time `json:"createdTime"`
	LastCheckTime             time.Time `json:"lastCheckTime"`
	LastRequestCompletionTime time.Time `json:"lastRequestCompletionTime"`
	LastRequestSucceeded      bool      `json:"lastRequestSucceeded"`

	// ApprovedIdentityHash is the identity the user last accepted in an update prompt
	ApprovedIdentityHash string `json:"approvedIdentityHash,omitempty"`

	// RelaxUpdates lengthens the check interval for apps that rarely change
	RelaxUpdates bool `json:"relaxUpdates"`

	// LastRequestedRuntimeVersion is the target runtime version of the last issued request
	LastRequestedRuntimeVersion string `json:"lastRequestedRuntimeVersion,omitempty"`

	ForceUpdate     bool `json:"forceUpdate"`
	UpdateScheduled bool `json:"updateScheduled"`

	// PendingRequestPath points at the single live pending update artifact, if any
	PendingRequestPath string `json:"pendingRequestPath,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func decode(appID string, v Values) *Record {
	return &Record{
		AppID:                       appID,
		PackageName:                 v.String(KeyPackageName, ""),
		CreatedTime:                 fromMillis(v.Int64(KeyCreatedTime, 0)),
		LastCheckTime:               fromMillis(v.Int64(KeyLastCheckTime, 0)),
		LastRequestCompletionTime:   fromMillis(v.Int64(KeyLastRequestCompletionTime, 0)),
		LastRequestSucceeded:        v.Bool(KeyLastRequestSucceeded, false),
		ApprovedIdentityHash:        v.String(KeyApprovedIdentityHash, ""),
		RelaxUpdates:                v.Bool(KeyRelaxUpdates, false),
		LastRequestedRuntimeVersion: v.String(KeyLastRequestedRuntimeVersion, ""),
		ForceUpdate:                 v.Bool(KeyForceUpdate, false),
		UpdateScheduled:             v.Bool(KeyUpdateScheduled, false),
		PendingRequestPath:          v.String(KeyPendingRequestPath, ""),
	}
}

// encode returns the keys to write and the keys to remove. Empty strings are removed
// rather than stored.
func (r *Record) encode() (Values, []string) {
	set := Values{}
	var deleted []string

	setString := func(key, value string) {
		if value == "" {
			deleted = append(deleted, key)
			return
		}
		set.SetString(key, value)
	}

	setString(KeyPackageName, r.PackageName)
	set.SetInt64(KeyCreatedTime, millis(r.CreatedTime))
	set.SetInt64(KeyLastCheckTime, millis(r.LastCheckTime))
	set.SetInt64(KeyLastRequestCompletionTime, millis(r.LastRequestCompletionTime))
	set.SetBool(KeyLastRequestSucceeded, r.LastRequestSucceeded)
	setString(KeyApprovedIdentityHash, r.ApprovedIdentityHash)
	set.SetBool(KeyRelaxUpdates, r.RelaxUpdates)
	setString(KeyLastRequestedRuntimeVersion, r.LastRequestedRuntimeVersion)
	set.SetBool(KeyForceUpdate, r.ForceUpdate)
	set.SetBool(KeyUpdateScheduled, r.UpdateScheduled)
	setString(KeyPendingRequestPath, r.PendingRequestPath)

	return set, deleted
}

// PreviousUpdateSucceeded reports whether the last update attempt succeeded. An app that
// never attempted an update counts as successful.
func (r *Record) PreviousUpdateSucceeded() bool {
	if r.LastRequestCompletionTime.IsZero() {
		return true
	}
	return r.LastRequestSucceeded
}

// Clone returns a copy of the record
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// RecordRequestIssued marks an update request as outstanding. The attempt counts as
// failed until delivery reports otherwise, so a process killed before delivery retries.
func (r *Record) RecordRequestIssued(now time.Time, runtimeVersion string) {
	r.LastRequestSucceeded = false
	r.LastRequestCompletionTime = now
	r.LastRequestedRuntimeVersion = runtimeVersion
}

// RecordOutcome stores the terminal outcome of an update cycle and clears the
// scheduling flags
func (r *Record) RecordOutcome(now time.Time, success, relaxUpdates bool) {
	r.LastRequestSucceeded = success
	r.LastRequestCompletionTime = now
	r.RelaxUpdates = relaxUpdates
	r.ForceUpdate = false
	r.UpdateScheduled = false
}
