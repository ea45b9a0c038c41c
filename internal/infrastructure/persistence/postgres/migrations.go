// Package postgres implements the PostgreSQL persistence layer for the bot
// factory: bot_registry, bot_flows, funnel_events, user_actions, bot_states.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE BOT REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create bot_registry table
-- Version: 001
-- Purpose: durable token -> handler_name mapping (C1)

CREATE TABLE IF NOT EXISTS bot_registry (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    bot_token VARCHAR(200) NOT NULL UNIQUE,
    bot_token_id VARCHAR(64) NOT NULL,
    handler_name VARCHAR(100) NOT NULL UNIQUE,
    creator_user_id BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    quarantine_reason TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_registry_status CHECK (status IN ('active', 'quarantined', 'disabled'))
);

-- Partial unique index: a bot_token_id may repeat across rows only for
-- non-active rows, so a quarantined/disabled registration does not block
-- someone else completing a fresh creation flow for the same prefix.
CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_registry_token_id_active
    ON bot_registry(bot_token_id) WHERE status = 'active';

CREATE INDEX IF NOT EXISTS idx_bot_registry_creator ON bot_registry(creator_user_id);
CREATE INDEX IF NOT EXISTS idx_bot_registry_status ON bot_registry(status);

CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_bot_registry_updated_at ON bot_registry;
CREATE TRIGGER update_bot_registry_updated_at
    BEFORE UPDATE ON bot_registry
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_bot_registry_updated_at ON bot_registry;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS bot_registry;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE BOT FLOWS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create bot_flows table
-- Version: 002
-- Purpose: creation-flow state machine rows (C7, §4.7)

CREATE TABLE IF NOT EXISTS bot_flows (
    flow_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id BIGINT NOT NULL,
    status VARCHAR(30) NOT NULL DEFAULT 'started',
    final_status VARCHAR(20),
    stage SMALLINT NOT NULL DEFAULT 1,
    bot_token_id VARCHAR(64),
    handler_name VARCHAR(100),
    description TEXT,
    failure_reason TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_flow_status CHECK (status IN (
        'started', 'waiting_token', 'waiting_description',
        'creating', 'created',
        'created_webhook_pending', 'activated', 'failed', 'cancelled'
    )),
    CONSTRAINT valid_flow_stage CHECK (stage BETWEEN 1 AND 5)
);

-- Stage Guardrail is enforced in application code (flow.AdvanceStage);
-- this partial unique index only protects §4.7.1/§4.7.3's "no existing
-- flow/registry entry for this bot_token_id" precondition.
CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_flows_token_id_open
    ON bot_flows(bot_token_id)
    WHERE status NOT IN ('failed', 'cancelled') AND bot_token_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_bot_flows_user ON bot_flows(user_id);
CREATE INDEX IF NOT EXISTS idx_bot_flows_user_open ON bot_flows(user_id)
    WHERE status NOT IN ('failed', 'cancelled', 'activated');
CREATE INDEX IF NOT EXISTS idx_bot_flows_created_at ON bot_flows(created_at DESC);

DROP TRIGGER IF EXISTS update_bot_flows_updated_at ON bot_flows;
CREATE TRIGGER update_bot_flows_updated_at
    BEFORE UPDATE ON bot_flows
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration002Down = `
DROP TRIGGER IF EXISTS update_bot_flows_updated_at ON bot_flows;
DROP TABLE IF EXISTS bot_flows;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE FUNNEL EVENTS AND USER ACTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create funnel_events and user_actions tables
-- Version: 003
-- Purpose: §4.7.5 idempotent funnel telemetry + §6 best-effort action log

CREATE TABLE IF NOT EXISTS funnel_events (
    id BIGSERIAL PRIMARY KEY,
    idempotency_key VARCHAR(200) NOT NULL UNIQUE,
    kind VARCHAR(40) NOT NULL,
    user_id BIGINT NOT NULL DEFAULT 0,
    flow_id UUID,
    bot_token_id VARCHAR(64),
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_event_kind CHECK (kind IN (
        'flow_started', 'token_accepted', 'token_already_used',
        'description_submitted', 'bot_created', 'bot_created_webhook_pending',
        'bot_activated_by_creator', 'flow_cancelled', 'creation_failed'
    ))
);

CREATE INDEX IF NOT EXISTS idx_funnel_events_kind ON funnel_events(kind);
CREATE INDEX IF NOT EXISTS idx_funnel_events_flow ON funnel_events(flow_id);
CREATE INDEX IF NOT EXISTS idx_funnel_events_occurred_at ON funnel_events(occurred_at DESC);

CREATE TABLE IF NOT EXISTS user_actions (
    id BIGSERIAL PRIMARY KEY,
    bot_token_id VARCHAR(64) NOT NULL,
    user_id BIGINT NOT NULL,
    action_type VARCHAR(30) NOT NULL,
    handler_name VARCHAR(100),
    error_kind VARCHAR(40),
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_action_type CHECK (action_type IN (
        'message', 'command', 'callback'
    ))
);

CREATE INDEX IF NOT EXISTS idx_user_actions_bot ON user_actions(bot_token_id);
CREATE INDEX IF NOT EXISTS idx_user_actions_occurred_at ON user_actions(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_user_actions_errors ON user_actions(error_kind, occurred_at DESC)
    WHERE error_kind IS NOT NULL;
`

const migration003Down = `
DROP TABLE IF EXISTS user_actions;
DROP TABLE IF EXISTS funnel_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE BOT STATES
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create bot_states table
-- Version: 004
-- Purpose: key-value backing store for handlerruntime.StateStore (§4.2)

CREATE TABLE IF NOT EXISTS bot_states (
    bot_token_id VARCHAR(64) NOT NULL,
    state_key VARCHAR(200) NOT NULL,
    state_value TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (bot_token_id, state_key)
);

CREATE INDEX IF NOT EXISTS idx_bot_states_updated_at ON bot_states(updated_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS bot_states;
`
