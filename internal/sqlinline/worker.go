package sqlinline

const QEnqueueGeneration = `--sql be6f135a-4144-473e-9b6d-74411f56868c
insert into generation_requests(id, user_id, status, request_json, created_at, updated_at)
values (gen_random_uuid(), nullif($1::text, ''), 'QUEUED', $2::jsonb, now(), now())
returning id::text;
`

const QWorkerClaimJob = `--sql 33d8cdf4-ea1b-4194-a91a-b4c3f0e62604
with next_job as (
    select id
    from generation_requests
    where status = 'QUEUED'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update generation_requests
    set status = 'RUNNING', updated_at = now()
    where id in (select id from next_job)
    returning id, user_id, status, request_json, result_json, error_code, record_id, created_at, updated_at
)
select
  id::text,
  coalesce(user_id, ''),
  status,
  request_json,
  result_json,
  coalesce(error_code, ''),
  coalesce(record_id::text, ''),
  created_at,
  updated_at
from updated;
`

const QWorkerCompleteJob = `--sql 37a2c976-2af3-466f-a766-f40d66e7fce7
update generation_requests
set status = $2::text,
    record_id = coalesce(nullif($3::text, '')::uuid, record_id),
    error_code = nullif($4::text, ''),
    result_json = coalesce($5::jsonb, result_json),
    updated_at = now()
where id = $1::uuid;
`

const QSelectJob = `--sql 3f2ef467-31de-4534-b2ff-c9de4bf498c6
select
  id::text,
  coalesce(user_id, ''),
  status,
  request_json,
  result_json,
  coalesce(error_code, ''),
  coalesce(record_id::text, ''),
  created_at,
  updated_at
from generation_requests
where id = $1::uuid
  and coalesce(user_id, '') = $2::text;
`

// QRequeueStaleJobs returns RUNNING jobs abandoned by a crashed worker to the queue.
const QRequeueStaleJobs = `--sql fb63550b-3b9c-4ce5-ab6d-9f43f97cea3c
update generation_requests
set status = 'QUEUED', updated_at = now()
where status = 'RUNNING'
  and updated_at < now() - make_interval(secs => $1::int);
`
