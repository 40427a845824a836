package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
	apperrors "github.com/atelier-hq/atelier-backend/pkg/errors"
	"github.com/atelier-hq/atelier-backend/pkg/logger"
	"github.com/atelier-hq/atelier-backend/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Directory creates, finds and lists conversations and manages group
// membership.
type Directory struct {
	db      *gorm.DB
	members *Membership
	people  PeopleDirectory
	bus     Broadcaster
	now     Clock
	log     zerolog.Logger
}

func NewDirectory(db *gorm.DB, members *Membership, people PeopleDirectory, bus Broadcaster, now Clock) *Directory {
	if bus == nil {
		bus = nopBroadcaster{}
	}
	if now == nil {
		now = SystemClock
	}
	return &Directory{
		db:      db,
		members: members,
		people:  people,
		bus:     bus,
		now:     now,
		log:     logger.Component("directory"),
	}
}

type CreateConversationInput struct {
	Type         models.ConversationType `json:"type" binding:"required"`
	Participants []models.Principal      `json:"participants" binding:"required"`
	Name         string                  `json:"name"`
	ProjectRef   *string                 `json:"projectRef"`
}

// ConversationSummary is one row of a principal's inbox.
type ConversationSummary struct {
	Conversation models.Conversation `json:"conversation"`
	Names        map[string]string   `json:"names,omitempty"`
	UnreadCount  int64               `json:"unreadCount"`
	LastMessage  *models.Message     `json:"lastMessage"`
	LastActivity time.Time           `json:"lastActivity"`
}

// ProjectSeed describes the participants a project conversation starts with.
type ProjectSeed struct {
	ProjectRef string   `json:"projectRef" binding:"required"`
	Name       string   `json:"name"`
	ClientID   string   `json:"clientId"`
	StaffIDs   []string `json:"staffIds"`
}

// Create opens a conversation that includes caller. A direct conversation
// between a pair that already has one returns the existing conversation and
// created=false. With a project reference it only resolves the project's
// conversation for one of its participants: project conversations are opened
// by CreateProjectConversation alone.
func (d *Directory) Create(ctx context.Context, caller models.Principal, in CreateConversationInput) (*models.Conversation, bool, error) {
	if !in.Type.Valid() {
		return nil, false, apperrors.BadRequest("unknown conversation type")
	}

	parts := lo.UniqBy(in.Participants, func(p models.Principal) string { return p.Key() })
	for _, p := range parts {
		if !p.Valid() {
			return nil, false, apperrors.BadRequest("invalid participant " + p.Key())
		}
	}
	if !lo.Contains(parts, caller) {
		return nil, false, apperrors.Forbidden("caller must be a participant")
	}

	switch in.Type {
	case models.ConversationDirect:
		if len(parts) != 2 {
			return nil, false, apperrors.BadRequest("a direct conversation needs exactly two distinct participants")
		}
		return d.createDirect(ctx, parts[0], parts[1])
	default:
		if in.ProjectRef != nil && strings.TrimSpace(*in.ProjectRef) != "" {
			return d.resolveProject(ctx, strings.TrimSpace(*in.ProjectRef), caller)
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, false, apperrors.BadRequest("a group conversation needs a name")
		}
		return d.createGroup(ctx, name, nil, parts)
	}
}

func (d *Directory) resolveProject(ctx context.Context, ref string, caller models.Principal) (*models.Conversation, bool, error) {
	conv, err := d.projectConversation(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	if !conv.HasParticipant(caller) {
		return nil, false, apperrors.Forbidden("not a participant of this conversation")
	}
	return conv, false, nil
}

// CreateDirect opens (or returns) the direct conversation between caller and other.
func (d *Directory) CreateDirect(ctx context.Context, caller, other models.Principal) (*models.Conversation, bool, error) {
	return d.Create(ctx, caller, CreateConversationInput{
		Type:         models.ConversationDirect,
		Participants: []models.Principal{caller, other},
	})
}

// CreateProjectConversation opens the group conversation of a project,
// seeded with its client and staff. Idempotent per project.
func (d *Directory) CreateProjectConversation(ctx context.Context, seed ProjectSeed) (*models.Conversation, bool, error) {
	ref := strings.TrimSpace(seed.ProjectRef)
	if ref == "" {
		return nil, false, apperrors.BadRequest("project reference is required")
	}
	name := strings.TrimSpace(seed.Name)
	if name == "" {
		name = ref
	}

	parts := make([]models.Principal, 0, len(seed.StaffIDs)+1)
	if seed.ClientID != "" {
		parts = append(parts, models.Client(seed.ClientID))
	}
	for _, id := range seed.StaffIDs {
		if id != "" {
			parts = append(parts, models.Employee(id))
		}
	}
	parts = lo.Uniq(parts)
	if len(parts) == 0 {
		return nil, false, apperrors.BadRequest("a project conversation needs at least one participant")
	}

	return d.createGroup(ctx, name, &ref, parts)
}

func (d *Directory) createDirect(ctx context.Context, a, b models.Principal) (*models.Conversation, bool, error) {
	key := models.DirectKey(a, b)

	existing, err := d.find(ctx, "direct_key = ?", key)
	if err != nil {
		return nil, false, apperrors.Persistence("conversation lookup failed", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	conv, err := d.insert(ctx, models.Conversation{Type: models.ConversationDirect, DirectKey: &key}, []models.Principal{a, b})
	if err != nil {
		// A concurrent create for the same pair wins the unique index.
		if existing, findErr := d.find(ctx, "direct_key = ?", key); findErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, apperrors.Persistence("failed to create conversation", err)
	}

	d.log.Info().Str("conversation", conv.ID).Str("pair", key).Msg("direct conversation created")
	return conv, true, nil
}

func (d *Directory) createGroup(ctx context.Context, name string, ref *string, parts []models.Principal) (*models.Conversation, bool, error) {
	if ref != nil {
		existing, err := d.find(ctx, "project_ref = ?", *ref)
		if err != nil {
			return nil, false, apperrors.Persistence("conversation lookup failed", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	conv, err := d.insert(ctx, models.Conversation{Type: models.ConversationGroupProject, Name: name, ProjectRef: ref}, parts)
	if err != nil {
		if ref != nil {
			if existing, findErr := d.find(ctx, "project_ref = ?", *ref); findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, apperrors.Persistence("failed to create conversation", err)
	}

	d.log.Info().Str("conversation", conv.ID).Int("participants", len(parts)).Msg("group conversation created")
	return conv, true, nil
}

// insert writes the conversation row and all participant rows atomically.
func (d *Directory) insert(ctx context.Context, conv models.Conversation, parts []models.Principal) (*models.Conversation, error) {
	now := d.now()
	conv.ID = utils.GenerateID()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.Participants = nil

	rows := lo.Map(parts, func(p models.Principal, _ int) models.Participant {
		return models.Participant{
			ConversationID: conv.ID,
			PrincipalID:    p.ID,
			PrincipalKind:  p.Kind,
			JoinedAt:       now,
		}
	})

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	conv.Participants = rows
	return &conv, nil
}

// find loads one conversation with participants, nil when none matches.
func (d *Directory) find(ctx context.Context, query string, args ...interface{}) (*models.Conversation, error) {
	var conv models.Conversation
	err := d.db.WithContext(ctx).Preload("Participants").Where(query, args...).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Get returns the conversation with its participants. Caller must participate.
func (d *Directory) Get(ctx context.Context, id string, caller models.Principal) (*models.Conversation, error) {
	if err := d.members.Require(ctx, id, caller); err != nil {
		return nil, err
	}
	conv, err := d.find(ctx, "id = ?", id)
	if err != nil {
		return nil, apperrors.Persistence("conversation lookup failed", err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	return conv, nil
}

// ListFor returns the conversations p participates in, most recent activity
// first, each with p's unread count and a last-message preview.
func (d *Directory) ListFor(ctx context.Context, p models.Principal) ([]ConversationSummary, error) {
	db := d.db.WithContext(ctx)

	var memberships []models.Participant
	if err := db.Where("principal_id = ? AND principal_kind = ?", p.ID, p.Kind).Find(&memberships).Error; err != nil {
		return nil, apperrors.Persistence("failed to fetch conversations", err)
	}
	if len(memberships) == 0 {
		return []ConversationSummary{}, nil
	}

	lastReads := lo.SliceToMap(memberships, func(m models.Participant) (string, *time.Time) {
		return m.ConversationID, m.LastRead
	})

	var convs []models.Conversation
	err := db.Preload("Participants").Where("id IN ?", lo.Keys(lastReads)).Find(&convs).Error
	if err != nil {
		return nil, apperrors.Persistence("failed to fetch conversations", err)
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		last, err := lastMessage(db, conv.ID)
		if err != nil {
			return nil, apperrors.Persistence("failed to fetch last message", err)
		}
		unread, err := countUnread(db, conv.ID, p, lastReads[conv.ID])
		if err != nil {
			return nil, apperrors.Persistence("failed to count unread messages", err)
		}

		activity := conv.CreatedAt
		if last != nil && last.SentAt.After(activity) {
			activity = last.SentAt
		}
		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			UnreadCount:  unread,
			LastMessage:  last,
			LastActivity: activity,
		})
	}

	d.attachNames(ctx, summaries)

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.Conversation.ID > b.Conversation.ID
	})
	return summaries, nil
}

func (d *Directory) attachNames(ctx context.Context, summaries []ConversationSummary) {
	if d.people == nil || len(summaries) == 0 {
		return
	}

	var everyone []models.Principal
	for _, s := range summaries {
		for _, part := range s.Conversation.Participants {
			everyone = append(everyone, part.Principal())
		}
	}

	names, err := d.people.Names(ctx, lo.Uniq(everyone))
	if err != nil {
		d.log.Warn().Err(err).Msg("participant names unavailable")
		return
	}

	for i := range summaries {
		local := make(map[string]string, len(summaries[i].Conversation.Participants))
		for _, part := range summaries[i].Conversation.Participants {
			if name, ok := names[part.Principal().Key()]; ok {
				local[part.Principal().Key()] = name
			}
		}
		summaries[i].Names = local
	}
}

// Participants lists the membership rows of a conversation. Caller must participate.
func (d *Directory) Participants(ctx context.Context, id string, caller models.Principal) ([]models.Participant, error) {
	if err := d.members.Require(ctx, id, caller); err != nil {
		return nil, err
	}
	var parts []models.Participant
	if err := d.db.WithContext(ctx).Where("conversation_id = ?", id).Find(&parts).Error; err != nil {
		return nil, apperrors.Persistence("failed to fetch participants", err)
	}
	return parts, nil
}

// Delete destroys a conversation with its messages and participants.
// Only a participant may delete it, and project conversations end with their
// project through the lifecycle sweep.
func (d *Directory) Delete(ctx context.Context, id string, caller models.Principal) error {
	if err := d.members.Require(ctx, id, caller); err != nil {
		return err
	}
	var conv models.Conversation
	if err := d.db.WithContext(ctx).Select("id", "project_ref").First(&conv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("conversation not found")
		}
		return apperrors.Persistence("conversation lookup failed", err)
	}
	if conv.ProjectRef != nil {
		return apperrors.Forbidden("project conversations are removed when the project completes")
	}
	if err := purgeConversation(ctx, d.db, id); err != nil {
		return apperrors.Persistence("failed to delete conversation", err)
	}

	d.log.Info().Str("conversation", id).Str("by", caller.Key()).Msg("conversation deleted")
	d.bus.EmitToRoom(id, EventConversationDeleted, ConversationDeletedNotice{ConversationID: id, Reason: "deleted"}, nil)
	d.bus.CloseRoom(id)
	return nil
}

func (d *Directory) projectConversation(ctx context.Context, projectRef string) (*models.Conversation, error) {
	conv, err := d.find(ctx, "project_ref = ? AND type = ?", projectRef, models.ConversationGroupProject)
	if err != nil {
		return nil, apperrors.Persistence("conversation lookup failed", err)
	}
	if conv == nil {
		return nil, apperrors.NotFound("project has no conversation")
	}
	return conv, nil
}

// AddStaff adds an employee assigned to the project to its conversation.
func (d *Directory) AddStaff(ctx context.Context, projectRef, employeeID string) (*models.Conversation, error) {
	if employeeID == "" {
		return nil, apperrors.BadRequest("employee id is required")
	}
	conv, err := d.projectConversation(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	p := models.Employee(employeeID)
	if conv.HasParticipant(p) {
		return conv, nil
	}

	row := models.Participant{ConversationID: conv.ID, PrincipalID: p.ID, PrincipalKind: p.Kind, JoinedAt: d.now()}
	if err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, apperrors.Persistence("failed to add participant", err)
	}

	d.log.Info().Str("conversation", conv.ID).Str("employee", employeeID).Msg("staff added")
	return d.projectConversation(ctx, projectRef)
}

// RemoveStaff removes an unassigned employee from the project conversation
// and drops their live subscriptions to it.
func (d *Directory) RemoveStaff(ctx context.Context, projectRef, employeeID string) (*models.Conversation, error) {
	conv, err := d.projectConversation(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	p := models.Employee(employeeID)
	if !conv.HasParticipant(p) {
		return conv, nil
	}
	if len(conv.Participants) == 1 {
		return nil, apperrors.BadRequest("cannot remove the last participant")
	}

	err = d.db.WithContext(ctx).
		Where("conversation_id = ? AND principal_id = ? AND principal_kind = ?", conv.ID, p.ID, p.Kind).
		Delete(&models.Participant{}).Error
	if err != nil {
		return nil, apperrors.Persistence("failed to remove participant", err)
	}

	d.bus.RemoveFromRoom(conv.ID, p)
	d.log.Info().Str("conversation", conv.ID).Str("employee", employeeID).Msg("staff removed")
	return d.projectConversation(ctx, projectRef)
}

// ParticipantProfile returns extra profile info for target. Both caller and
// target must participate in the conversation.
func (d *Directory) ParticipantProfile(ctx context.Context, id string, caller, target models.Principal) (*Profile, error) {
	if err := d.members.Require(ctx, id, caller); err != nil {
		return nil, err
	}
	ok, err := d.members.IsParticipant(ctx, id, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NotFound("participant not found")
	}
	if d.people == nil {
		return &Profile{Principal: target}, nil
	}
	return d.people.Profile(ctx, target)
}
