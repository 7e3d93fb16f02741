package sqlinline

const QInsertUsageEvent = `--sql e40f651c-a8b3-44c7-a911-bb8a0ed5f6ef
insert into usage_events(id, user_id, request_id, generation_id, class, tier, used_credit, credit_cost, created_at)
values (gen_random_uuid(), nullif($1::text, '')::uuid, nullif($2::text, '')::uuid, $3::uuid, $4::text, $5::text, $6::boolean, $7::int, now());
`
