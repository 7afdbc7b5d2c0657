package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/FFXIVVenues/kino-ki/models"
	"github.com/FFXIVVenues/kino-ki/workers"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrChannelAlreadyExists = errors.New("channel is already configured")
	ErrChannelNotFound      = errors.New("channel is not configured")
	ErrTagMappingNotFound   = errors.New("tag is not mapped to that role")
	ErrInvalidTag           = errors.New("tag name is empty")
)

// ChannelNotifier queues a notification for delivery to a chat channel.
type ChannelNotifier interface {
	Notify(n workers.Notification) bool
}

// Role is a guild role as reported by the relay.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Thread is a newly created forum thread.
type Thread struct {
	GuildID     string   `json:"guild_id"`
	ThreadID    string   `json:"thread_id"`
	ParentID    string   `json:"parent_id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	AuthorID    string   `json:"author_id"`
	AppliedTags []string `json:"applied_tags"`
	GuildRoles  []Role   `json:"guild_roles"`
}

// JobChannels lists a guild's configured channels.
type JobChannels struct {
	Sources      []string `json:"sources"`
	Destinations []string `json:"destinations"`
}

// TagMapping is one forum tag and every role mapped to it.
type TagMapping struct {
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	ChannelID string   `json:"channel_id"`
	RoleIDs   []string `json:"role_ids"`
}

// CrosspostResult reports what a crosspost did.
type CrosspostResult struct {
	Skipped      bool     `json:"skipped"`
	Mentions     []string `json:"mentions"`
	Destinations []string `json:"destinations"`
	Queued       int      `json:"queued"`
}

// JobPostingPayload is the Data of a job_posting notification.
type JobPostingPayload struct {
	ThreadID   string   `json:"thread_id"`
	ThreadName string   `json:"thread_name"`
	ThreadURL  string   `json:"thread_url"`
	SourceID   string   `json:"source_channel_id"`
	AuthorID   string   `json:"author_id,omitempty"`
	RoleIDs    []string `json:"role_ids"`
}

type JobPostingService struct {
	DB       *gorm.DB
	Notifier ChannelNotifier
}

func NewJobPostingService(db *gorm.DB, notifier ChannelNotifier) *JobPostingService {
	return &JobPostingService{DB: db, Notifier: notifier}
}

func (s *JobPostingService) addChannel(ctx context.Context, guildID, channelID, kind string) error {
	row := models.JobChannel{ID: uuid.NewString(), GuildID: guildID, ChannelID: channelID, Kind: kind}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("add %s channel %s: %w", kind, channelID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChannelAlreadyExists
	}
	return nil
}

func (s *JobPostingService) removeChannel(ctx context.Context, guildID, channelID, kind string) error {
	res := s.DB.WithContext(ctx).Unscoped().
		Where("guild_id = ? AND channel_id = ? AND kind = ?", guildID, channelID, kind).
		Delete(&models.JobChannel{})
	if res.Error != nil {
		return fmt.Errorf("remove %s channel %s: %w", kind, channelID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (s *JobPostingService) AddSource(ctx context.Context, guildID, channelID string) error {
	return s.addChannel(ctx, guildID, channelID, models.JobChannelSource)
}

func (s *JobPostingService) RemoveSource(ctx context.Context, guildID, channelID string) error {
	return s.removeChannel(ctx, guildID, channelID, models.JobChannelSource)
}

func (s *JobPostingService) AddDestination(ctx context.Context, guildID, channelID string) error {
	return s.addChannel(ctx, guildID, channelID, models.JobChannelDestination)
}

func (s *JobPostingService) RemoveDestination(ctx context.Context, guildID, channelID string) error {
	return s.removeChannel(ctx, guildID, channelID, models.JobChannelDestination)
}

// Channels returns the guild's sources and destinations in the order added.
func (s *JobPostingService) Channels(ctx context.Context, guildID string) (JobChannels, error) {
	var rows []models.JobChannel
	if err := s.DB.WithContext(ctx).Where("guild_id = ?", guildID).
		Order("created_at ASC").Find(&rows).Error; err != nil {
		return JobChannels{}, err
	}
	out := JobChannels{Sources: []string{}, Destinations: []string{}}
	for _, r := range rows {
		if r.Kind == models.JobChannelSource {
			out.Sources = append(out.Sources, r.ChannelID)
		} else {
			out.Destinations = append(out.Destinations, r.ChannelID)
		}
	}
	return out, nil
}

// MapTag adds roleID to the forum tag. Mapping an existing pair is a no-op.
func (s *JobPostingService) MapTag(ctx context.Context, guildID, channelID, tagName, roleID string) (models.JobTag, error) {
	key := slug.Make(tagName)
	if key == "" {
		return models.JobTag{}, ErrInvalidTag
	}
	row := models.JobTag{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		ChannelID: channelID,
		Name:      tagName,
		Slug:      key,
		RoleID:    roleID,
	}
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return models.JobTag{}, fmt.Errorf("map tag %q: %w", tagName, err)
	}
	return row, nil
}

// UnmapTag removes roleID from the tag.
func (s *JobPostingService) UnmapTag(ctx context.Context, guildID, tagName, roleID string) error {
	res := s.DB.WithContext(ctx).Unscoped().
		Where("guild_id = ? AND slug = ? AND role_id = ?", guildID, slug.Make(tagName), roleID).
		Delete(&models.JobTag{})
	if res.Error != nil {
		return fmt.Errorf("unmap tag %q: %w", tagName, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagMappingNotFound
	}
	return nil
}

func (s *JobPostingService) tags(ctx context.Context, guildID string) ([]models.JobTag, error) {
	var rows []models.JobTag
	err := s.DB.WithContext(ctx).Where("guild_id = ?", guildID).
		Order("created_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// ListTags groups the guild's mappings by tag.
func (s *JobPostingService) ListTags(ctx context.Context, guildID string) ([]TagMapping, error) {
	rows, err := s.tags(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return groupTags(rows), nil
}

func groupTags(rows []models.JobTag) []TagMapping {
	var out []TagMapping
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Slug]
		if !ok {
			i = len(out)
			index[r.Slug] = i
			out = append(out, TagMapping{Name: r.Name, Slug: r.Slug, ChannelID: r.ChannelID})
		}
		out[i].RoleIDs = append(out[i].RoleIDs, r.RoleID)
	}
	return out
}

// TagsForRole lists the tags that mention roleID.
func (s *JobPostingService) TagsForRole(ctx context.Context, guildID, roleID string) ([]models.JobTag, error) {
	var rows []models.JobTag
	err := s.DB.WithContext(ctx).Where("guild_id = ? AND role_id = ?", guildID, roleID).
		Order("name ASC").Find(&rows).Error
	return rows, err
}

// ChannelDeleted forgets a deleted channel and the tags of a deleted forum.
func (s *JobPostingService) ChannelDeleted(ctx context.Context, guildID, channelID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("guild_id = ? AND channel_id = ?", guildID, channelID).
			Delete(&models.JobChannel{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("guild_id = ? AND channel_id = ?", guildID, channelID).
			Delete(&models.JobTag{}).Error
	})
}

// TagsRemoved drops mappings for tags that no longer exist on the forum.
func (s *JobPostingService) TagsRemoved(ctx context.Context, guildID, channelID string, tagNames []string) (int64, error) {
	if len(tagNames) == 0 {
		return 0, nil
	}
	slugs := make([]string, len(tagNames))
	for i, n := range tagNames {
		slugs[i] = slug.Make(n)
	}
	res := s.DB.WithContext(ctx).Unscoped().
		Where("guild_id = ? AND channel_id = ? AND slug IN ?", guildID, channelID, slugs).
		Delete(&models.JobTag{})
	return res.RowsAffected, res.Error
}

// ResolveMentions returns the roles a thread with appliedTags mentions: guild
// roles named like a tag (ignoring case) followed by the roles mapped to it.
// Each role appears once, in first-seen order.
func ResolveMentions(appliedTags []string, guildRoles []Role, mappings []models.JobTag) []string {
	fold := cases.Fold()
	seen := make(map[string]bool)
	out := []string{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, tag := range appliedTags {
		folded := fold.String(tag)
		for _, r := range guildRoles {
			if fold.String(r.Name) == folded {
				add(r.ID)
			}
		}
		key := slug.Make(tag)
		for _, m := range mappings {
			if m.Slug == key {
				add(m.RoleID)
			}
		}
	}
	return out
}

// Crosspost announces a new job thread in every destination channel.
func (s *JobPostingService) Crosspost(ctx context.Context, t Thread) (CrosspostResult, error) {
	channels, err := s.Channels(ctx, t.GuildID)
	if err != nil {
		return CrosspostResult{}, err
	}
	isSource := false
	for _, id := range channels.Sources {
		if id == t.ParentID {
			isSource = true
			break
		}
	}
	if !isSource || len(t.AppliedTags) == 0 {
		return CrosspostResult{Skipped: true}, nil
	}

	mappings, err := s.tags(ctx, t.GuildID)
	if err != nil {
		return CrosspostResult{}, err
	}
	mentions := ResolveMentions(t.AppliedTags, t.GuildRoles, mappings)
	result := CrosspostResult{Mentions: mentions, Destinations: channels.Destinations}

	payload := JobPostingPayload{
		ThreadID:   t.ThreadID,
		ThreadName: t.Name,
		ThreadURL:  t.URL,
		SourceID:   t.ParentID,
		AuthorID:   t.AuthorID,
		RoleIDs:    mentions,
	}
	now := time.Now()
	for _, dest := range channels.Destinations {
		if s.Notifier != nil && s.Notifier.Notify(workers.Notification{
			Kind:      workers.KindJobPosting,
			GuildID:   t.GuildID,
			ChannelID: dest,
			Data:      payload,
			At:        now,
		}) {
			result.Queued++
		}
	}

	if err := s.recordStats(ctx, t.GuildID, mentions); err != nil {
		log.Printf("[JobPostings] ❌ Failed to update stats for %s: %v", t.ThreadID, err)
	}
	log.Printf("[JobPostings] ✅ Crossposted %s to %d channel(s), %d role(s)", t.ThreadID, result.Queued, len(mentions))
	return result, nil
}

func (s *JobPostingService) recordStats(ctx context.Context, guildID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]models.JobPostingStat, len(roleIDs))
	for i, id := range roleIDs {
		rows[i] = models.JobPostingStat{GuildID: guildID, RoleID: id, Postings: 1}
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "guild_id"}, {Name: "role_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"postings":   gorm.Expr("job_posting_stats.postings + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&rows).Error
}

// Stats returns crosspost counts per role, busiest first.
func (s *JobPostingService) Stats(ctx context.Context, guildID string) ([]models.JobPostingStat, error) {
	var rows []models.JobPostingStat
	err := s.DB.WithContext(ctx).Where("guild_id = ?", guildID).
		Order("postings DESC").Order("role_id ASC").Find(&rows).Error
	return rows, err
}
