package sqlinline

const QInsertGeneration = `--sql 5c6fd8a3-27b4-4e09-8d1c-f0a92e65b718
insert into generations (id, owner_id, capability_token, source_photo, class,
                         status, watermarked, created_at)
values ($1::uuid, nullif($2::text, '')::uuid, nullif($3::text, ''), $4::text,
        $5::text, $6::text, $7::boolean, $8::timestamptz);
`

const QSelectGeneration = `--sql b82a1f64-9c50-4d37-a6e8-03d7c2f91e45
select id, coalesce(owner_id::text, ''), coalesce(capability_token, ''),
       source_photo, class, status,
       coalesce(result_location, ''), coalesce(error_code, ''), coalesce(error_message, ''),
       watermarked, created_at, coalesce(completed_at, 'epoch'::timestamptz)
from generations
where id = $1::uuid;
`

const QTransitionGeneration = `--sql 48d3c7b0-e6a9-4512-bf84-76c01d9ae253
update generations
set status = $2::text,
    result_location = nullif($3::text, ''),
    error_code = nullif($4::text, ''),
    error_message = nullif($5::text, ''),
    completed_at = $6::timestamptz
where id = $1::uuid
  and status = 'pending';
`
