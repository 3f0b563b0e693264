package provision

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cloudidm/onboard/pkg/logger"
	"github.com/cloudidm/onboard/pkg/metrics"
)

// Defaults for the synchronization retry policy and the built-in role names.
const (
	DefaultSyncRetries = 4
	DefaultSyncDelay   = 5 * time.Second
	DefaultMemberRole  = "_member_"
	DefaultAdminRole   = "cpf_systemowner"
)

// Gateway is the identity-backend surface the orchestrator drives. One
// method per remote call; bind calls fold their HTTP outcome into a
// CallResult so the orchestrator never sees raw responses.
type Gateway interface {
	List(ctx context.Context, kind Kind) ([]Object, error)
	CreateUser(ctx context.Context, s Subject) CallResult
	CreateProject(ctx context.Context, name string) CallResult
	// CreateGroup returns the name the backend assigned; the orchestrator
	// verifies it echoes the requested one.
	CreateGroup(ctx context.Context, name string) (string, error)
	AssignRoleToUser(ctx context.Context, username, project, role string) CallResult
	AssignRoleToGroup(ctx context.Context, group, project, role string) CallResult
	AssignUserToGroup(ctx context.Context, username, group string) CallResult
}

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Reason classifies a terminal failure. SyncTimeout reasons indicate a
// plausibly-transient replication-lag condition; all others need the input
// or the backend fixed before re-running.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonMalformedEmail           Reason = "MalformedEmail"
	ReasonBackendListing           Reason = "BackendListingError"
	ReasonUserCreate               Reason = "UserCreateError"
	ReasonDefaultProjectMissing    Reason = "DefaultProjectMissing"
	ReasonMembershipSyncTimeout    Reason = "MembershipSyncTimeout"
	ReasonGroupBindSyncTimeout     Reason = "GroupBindSyncTimeout"
	ReasonGroupCreateMismatch      Reason = "GroupCreateMismatch"
	ReasonGroupCreate              Reason = "GroupCreateError"
	ReasonGroupRoleBindSyncTimeout Reason = "GroupRoleBindSyncTimeout"
	ReasonUserGroupBindSyncTimeout Reason = "UserGroupBindSyncTimeout"
	ReasonUserGroupBind            Reason = "UserGroupBindError"
	ReasonProjectCreate            Reason = "ProjectCreateError"
)

// Transient reports whether the failure class may clear on its own.
func (r Reason) Transient() bool {
	switch r {
	case ReasonMembershipSyncTimeout, ReasonGroupBindSyncTimeout,
		ReasonGroupRoleBindSyncTimeout, ReasonUserGroupBindSyncTimeout:
		return true
	}
	return false
}

// StageRecord is one entry of the per-run audit trail. Attempt is set for
// bind calls under the synchronization retry policy; attempts beyond the
// first are the "still syncing" retries.
type StageRecord struct {
	Seq     int       `json:"seq"`
	Label   string    `json:"label"`
	Attempt int       `json:"attempt,omitempty"`
	At      time.Time `json:"at"`
}

// Outcome is the terminal result of one provisioning run. The subject
// snapshot carries the generated password even on failure so a human
// operator can resume manually.
type Outcome struct {
	RunID   string        `json:"runId"`
	Status  Status        `json:"status"`
	Reason  Reason        `json:"reason,omitempty"`
	Subject Subject       `json:"subject"`
	Project string        `json:"project"`
	Trail   []StageRecord `json:"trail"`
}

// StatusRecord is the last-known state pushed to a Recorder after every
// transition, keyed by subject email.
type StatusRecord struct {
	Status  string    `json:"status"`
	Subject Subject   `json:"subject"`
	Project string    `json:"project"`
	At      time.Time `json:"at"`
}

// Recorder receives the status record after every transition. Update
// failures are logged, never fatal to the run.
type Recorder interface {
	Update(ctx context.Context, email string, rec StatusRecord) error
}

// Orchestrator drives the fixed provisioning sequence: ensure user, ensure
// default-project membership, ensure project and admin group, bind roles.
// One remote call at a time; retry with delay where central-to-regional
// replication lag is expected. Safe for concurrent Run calls, which share
// no state beyond the backend itself.
type Orchestrator struct {
	gw         Gateway
	recorder   Recorder
	contract   string
	memberRole string
	adminRole  string
	retries    int
	delay      time.Duration
	sleep      func(time.Duration)
}

func NewOrchestrator(gw Gateway, contract string) *Orchestrator {
	return &Orchestrator{
		gw:         gw,
		contract:   contract,
		memberRole: DefaultMemberRole,
		adminRole:  DefaultAdminRole,
		retries:    DefaultSyncRetries,
		delay:      DefaultSyncDelay,
		sleep:      time.Sleep,
	}
}

// WithRecorder attaches a status recorder.
func (o *Orchestrator) WithRecorder(r Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithRoles overrides the built-in member and admin role names.
func (o *Orchestrator) WithRoles(member, admin string) *Orchestrator {
	if member != "" {
		o.memberRole = member
	}
	if admin != "" {
		o.adminRole = admin
	}
	return o
}

// WithRetryPolicy overrides the synchronization retry policy: retries extra
// attempts with a fixed delay between them.
func (o *Orchestrator) WithRetryPolicy(retries int, delay time.Duration) *Orchestrator {
	o.retries = retries
	o.delay = delay
	return o
}

// WithSleep replaces the blocking pause between retries; tests inject a
// recording fake so retry spacing is checked in abstract time.
func (o *Orchestrator) WithSleep(fn func(time.Duration)) *Orchestrator {
	o.sleep = fn
	return o
}

// DefaultProjectName is the contract's default project, where every fresh
// user gets member access first.
func (o *Orchestrator) DefaultProjectName() string {
	return o.contract + "-prj"
}

// GroupName derives the admin group carried by each project.
func GroupName(project string) string {
	return project + "_Admin"
}

// Run executes one provisioning pass for the subject derived from email
// into the named project. It always returns a terminal Outcome; errors are
// folded into the outcome's reason, never returned separately.
func (o *Orchestrator) Run(ctx context.Context, email, project string) Outcome {
	started := time.Now()
	r := &run{o: o, ctx: ctx, id: uuid.NewString(), email: email, project: project}
	out := r.execute()
	label := string(out.Status)
	if out.Reason != ReasonNone {
		label = string(out.Reason)
	}
	metrics.ProvisionRuns.WithLabelValues(label).Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	logger.Infof("provision %s: finished status=%s reason=%s user=%s project=%s",
		r.id, out.Status, out.Reason, out.Subject.Username, out.Project)
	return out
}

// run holds the mutable state of one pass.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	id      string
	email   string
	project string
	subject Subject
	seq     int
	trail   []StageRecord
}

func (r *run) execute() Outcome {
	subj, err := DeriveSubject(r.email)
	if err != nil {
		r.stage("step 1: could not derive credentials from email address")
		return r.fail(ReasonMalformedEmail)
	}
	r.subject = subj
	r.stage("step 1: initialised, username and password generated")

	users, err := r.o.gw.List(r.ctx, KindUsers)
	if err != nil {
		logger.Errorf("provision %s: user listing failed: %v", r.id, err)
		return r.failAt("step 2: user listing unavailable", ReasonBackendListing)
	}
	if _, exists := FindID(users, subj.Username); exists {
		// Reuse the existing account; no default membership needed, the
		// account already went through it when first provisioned.
		r.stage("step 2: login name already exists, existing user will be added to project")
	} else {
		res := r.o.gw.CreateUser(r.ctx, subj)
		if !res.OK() {
			logger.Errorf("provision %s: user create %s", r.id, res)
			return r.failAt("step 4: failed to add user to central portal", ReasonUserCreate)
		}
		r.stage("step 3: user added to central portal")

		if out, ok := r.assignDefaultMembership(); !ok {
			return out
		}
	}

	projects, err := r.o.gw.List(r.ctx, KindProjects)
	if err != nil {
		logger.Errorf("provision %s: project listing failed: %v", r.id, err)
		return r.failAt("step 9: project listing unavailable", ReasonBackendListing)
	}
	if _, exists := FindID(projects, r.project); exists {
		return r.attachToExistingProject()
	}
	return r.createProjectAndAttach()
}

// assignDefaultMembership binds a freshly created user into the contract's
// default project with the member role. Returns ok=false with the terminal
// outcome when the run must stop.
func (r *run) assignDefaultMembership() (Outcome, bool) {
	defaultProject := r.o.DefaultProjectName()
	projects, err := r.o.gw.List(r.ctx, KindProjects)
	if err != nil {
		logger.Errorf("provision %s: project listing failed: %v", r.id, err)
		return r.failAt("step 8: project listing unavailable", ReasonBackendListing), false
	}
	if _, exists := FindID(projects, defaultProject); !exists {
		return r.failAt("step 8: default project "+defaultProject+" not found, check contract settings", ReasonDefaultProjectMissing), false
	}
	res := r.bindWithSync("default_membership", "step 5: assigning member role on default project", func() CallResult {
		return r.o.gw.AssignRoleToUser(r.ctx, r.subject.Username, defaultProject, r.o.memberRole)
	})
	if !res.OK() {
		logger.Errorf("provision %s: default membership %s", r.id, res)
		return r.failAt("step 7: unable to assign member role on default project", ReasonMembershipSyncTimeout), false
	}
	r.stage("step 6: member role assigned on default project")
	return Outcome{}, true
}

// attachToExistingProject handles the branch where the target project is
// already present: ensure the admin group exists and bind the subject in.
func (r *run) attachToExistingProject() Outcome {
	group := GroupName(r.project)
	groups, err := r.o.gw.List(r.ctx, KindGroups)
	if err != nil {
		logger.Errorf("provision %s: group listing failed: %v", r.id, err)
		return r.failAt("step 9: group listing unavailable", ReasonBackendListing)
	}
	if _, exists := FindID(groups, group); exists {
		res := r.bindWithSync("user_group_bind", "step 10: adding user to group", func() CallResult {
			return r.o.gw.AssignUserToGroup(r.ctx, r.subject.Username, group)
		})
		if !res.OK() {
			logger.Errorf("provision %s: user-group bind %s", r.id, res)
			return r.failAt("step 10.2: failed to add user to group", ReasonGroupBindSyncTimeout)
		}
		r.stage("step 10.1: user added to group")
		return r.succeed()
	}

	r.stage("step 11: group missing, creating " + group)
	name, err := r.o.gw.CreateGroup(r.ctx, group)
	if err != nil || name != group {
		logger.Errorf("provision %s: group create returned %q, err=%v", r.id, name, err)
		return r.failAt("step 11.2: failed to create group", ReasonGroupCreateMismatch)
	}
	r.stage("step 11.1: group " + group + " created")

	res := r.bindWithSync("group_role_bind", "step 12: assigning role to group on project", func() CallResult {
		return r.o.gw.AssignRoleToGroup(r.ctx, group, r.project, r.o.adminRole)
	})
	if !res.OK() {
		logger.Errorf("provision %s: group-role bind %s", r.id, res)
		return r.failAt("step 14: failed to assign role to group", ReasonGroupRoleBindSyncTimeout)
	}
	r.stage("step 13: role assigned to group on project")

	res = r.bindWithSync("user_group_bind", "step 15: adding user to group", func() CallResult {
		return r.o.gw.AssignUserToGroup(r.ctx, r.subject.Username, group)
	})
	if !res.OK() {
		logger.Errorf("provision %s: user-group bind %s", r.id, res)
		if res.TransportFailed() {
			return r.failAt("step 16: failed to add user to group", ReasonUserGroupBind)
		}
		return r.failAt("step 16: failed to add user to group", ReasonUserGroupBindSyncTimeout)
	}
	r.stage("step 15.1: user added to group")
	return r.succeed()
}

// createProjectAndAttach handles the fresh-project branch: create project,
// create admin group, bind the group role, bind the subject in.
func (r *run) createProjectAndAttach() Outcome {
	res := r.o.gw.CreateProject(r.ctx, r.project)
	if !res.OK() {
		logger.Errorf("provision %s: project create %s", r.id, res)
		return r.failAt("step 18: project create failed", ReasonProjectCreate)
	}
	r.stage("step 17: project " + r.project + " created")

	group := GroupName(r.project)
	name, err := r.o.gw.CreateGroup(r.ctx, group)
	if err != nil || name != group {
		logger.Errorf("provision %s: group create returned %q, err=%v", r.id, name, err)
		return r.failAt("step 20: group create failed", ReasonGroupCreate)
	}
	r.stage("step 19: group " + group + " created")

	res = r.bindWithSync("group_role_bind", "step 21: assigning role to group on project", func() CallResult {
		return r.o.gw.AssignRoleToGroup(r.ctx, group, r.project, r.o.adminRole)
	})
	if !res.OK() {
		logger.Errorf("provision %s: group-role bind %s", r.id, res)
		return r.failAt("step 23: failed to assign role to group", ReasonGroupRoleBindSyncTimeout)
	}
	r.stage("step 22: role assigned to group on project")

	res = r.bindWithSync("user_group_bind", "step 25: adding user to group", func() CallResult {
		return r.o.gw.AssignUserToGroup(r.ctx, r.subject.Username, group)
	})
	if !res.OK() {
		logger.Errorf("provision %s: user-group bind %s", r.id, res)
		return r.failAt("step 27: failed to add user to group", ReasonUserGroupBindSyncTimeout)
	}
	r.stage("step 26: user added to group")
	return r.succeed()
}

// bindWithSync re-issues an identical bind call while the backend has not
// yet replicated the objects it refers to: one initial attempt plus up to
// retries more, sleeping the fixed delay before each retry. Every attempt
// is recorded in the audit trail.
func (r *run) bindWithSync(stage, label string, bind func() CallResult) CallResult {
	res := bind()
	r.attempt(stage, label, 1)
	for i := 1; i <= r.o.retries && !res.OK(); i++ {
		r.o.sleep(r.o.delay)
		res = bind()
		r.attempt(stage, label, i+1)
	}
	return res
}

func (r *run) stage(label string) {
	r.append(StageRecord{Label: label})
	logger.Infof("provision %s: %s", r.id, label)
}

func (r *run) attempt(stage, label string, n int) {
	r.append(StageRecord{Label: label, Attempt: n})
	if n > 1 {
		metrics.SyncRetries.WithLabelValues(stage).Inc()
		logger.Infof("provision %s: %s (sync retry, attempt %d)", r.id, label, n)
		return
	}
	logger.Debugf("provision %s: %s (attempt 1)", r.id, label)
}

func (r *run) append(rec StageRecord) {
	r.seq++
	rec.Seq = r.seq
	rec.At = time.Now().UTC()
	r.trail = append(r.trail, rec)
	if r.o.recorder != nil {
		sr := StatusRecord{Status: rec.Label, Subject: r.subject, Project: r.project, At: rec.At}
		if err := r.o.recorder.Update(r.ctx, r.email, sr); err != nil {
			logger.Warnf("provision %s: status record update failed: %v", r.id, err)
		}
	}
}

func (r *run) failAt(label string, reason Reason) Outcome {
	r.stage(label)
	return r.fail(reason)
}

func (r *run) fail(reason Reason) Outcome {
	return Outcome{RunID: r.id, Status: StatusFailed, Reason: reason, Subject: r.subject, Project: r.project, Trail: r.trail}
}

func (r *run) succeed() Outcome {
	r.stage("success: user provisioned")
	return Outcome{RunID: r.id, Status: StatusSuccess, Subject: r.subject, Project: r.project, Trail: r.trail}
}
