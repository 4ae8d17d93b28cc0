package sqlinline

// QInsertGeneration writes the artifact row and its usage event in one statement.
const QInsertGeneration = `--sql 3944af0a-788b-4ead-a383-4372cbca158a
with
input as (
  select
    $1::uuid    as id,
    $2::text    as user_id,
    $3::text    as request_id,
    $4::text    as storage_key,
    $5::text    as mime_type,
    $6::int     as width,
    $7::int     as height,
    $8::text    as provider,
    $9::text    as model,
    $10::int    as cost_credits,
    $11::int    as latency_ms,
    $12::jsonb  as properties
),
ins_generation as (
  insert into generations(
    id,
    user_id,
    request_id,
    storage_key,
    mime_type,
    width,
    height,
    provider,
    model,
    cost_credits,
    created_at
  )
  select id, nullif(user_id, ''), request_id, storage_key, mime_type, width, height, provider, model, cost_credits, now()
  from input
  returning id
),
ins_usage as (
  insert into usage_events(id, user_id, request_id, event_type, success, latency_ms, created_at, properties)
  select
    gen_random_uuid(),
    nullif(i.user_id, ''),
    i.request_id,
    'IMAGE_GENERATION',
    true,
    i.latency_ms,
    now(),
    coalesce(i.properties, '{}'::jsonb) || jsonb_build_object('generation_id', g.id, 'cost_credits', i.cost_credits)
  from input i, ins_generation g
  returning id
)
select g.id::text from ins_generation g, ins_usage u;
`

const QSelectGeneration = `--sql a37d0a0e-43d0-4d95-aaca-1163fd7d28f3
select
  id::text,
  coalesce(user_id, ''),
  request_id,
  storage_key,
  mime_type,
  width,
  height,
  provider,
  model,
  cost_credits,
  created_at
from generations
where id = $1::uuid;
`
